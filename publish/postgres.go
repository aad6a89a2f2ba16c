package publish

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/cloudx-io/openmarket/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS market_events (
	seq           BIGINT PRIMARY KEY,
	id            UUID NOT NULL,
	kind          VARCHAR(32) NOT NULL,
	item_id       BIGINT NOT NULL,
	actor         VARCHAR(255) NOT NULL,
	counterparty  VARCHAR(255),
	amount        NUMERIC(78, 0) NOT NULL DEFAULT 0,
	royalty       NUMERIC(78, 0) NOT NULL DEFAULT 0,
	metadata_ref  TEXT,
	occurred_at   TIMESTAMPTZ NOT NULL,
	prev_hash     CHAR(64),
	hash          CHAR(64) NOT NULL,
	created_at    TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_market_events_item_id ON market_events(item_id);
CREATE INDEX IF NOT EXISTS idx_market_events_actor ON market_events(actor);
`

const insertEvent = `
	INSERT INTO market_events
		(seq, id, kind, item_id, actor, counterparty, amount, royalty, metadata_ref, occurred_at, prev_hash, hash)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), $10, NULLIF($11, ''), $12)
	ON CONFLICT (seq) DO NOTHING
`

// PostgresSink archives every event in the market_events table.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresSink{db: db}
	if err := s.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Publish(ctx context.Context, ev core.Event) error {
	_, err := s.db.ExecContext(ctx, insertEvent, eventArgs(ev)...)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// eventArgs orders the insert parameters. Amounts go in as decimal strings so
// NUMERIC keeps every digit.
func eventArgs(ev core.Event) []any {
	return []any{
		int64(ev.Seq),
		ev.ID,
		string(ev.Kind),
		int64(ev.ItemID),
		ev.Actor.String(),
		ev.Counterparty.String(),
		ev.Amount.String(),
		ev.Royalty.String(),
		ev.MetadataRef,
		ev.Timestamp.UTC(),
		ev.PrevHash,
		ev.Hash,
	}
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}
