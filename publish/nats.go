package publish

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/cloudx-io/openmarket/core"
)

// NATSSubject is the JetStream subject an item's events are published on.
func NATSSubject(id core.ItemID) string {
	return fmt.Sprintf("market.events.%d", id)
}

// NATSSink publishes events to a JetStream stream for durable consumers.
type NATSSink struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream string
}

func NewNATSSink(ctx context.Context, url, stream string) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("openmarket-ledger"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Market ledger events",
		Subjects:    []string{"market.events.*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  10 * time.Minute,
		Replicas:    1,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}
	log.Printf("INFO: JetStream stream %s ready", stream)

	return &NATSSink{conn: conn, js: js, stream: stream}, nil
}

func (s *NATSSink) Name() string { return "nats:" + s.stream }

// Publish waits for the server ack. The event id is used as the message id so
// redelivery after a retry is deduplicated by JetStream.
func (s *NATSSink) Publish(ctx context.Context, ev core.Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := s.js.Publish(ctx, NATSSubject(ev.ItemID), data, jetstream.WithMsgID(ev.ID)); err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}
