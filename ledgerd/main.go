package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/bank"
	"github.com/cloudx-io/openmarket/config"
	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/gateway"
	"github.com/cloudx-io/openmarket/market"
	"github.com/cloudx-io/openmarket/publish"
	"github.com/cloudx-io/openmarket/receipts"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signer, err := receipts.LoadSigner(cfg.Ledger.SigningKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load receipt signer: %w", err)
	}
	log.Printf("INFO: Receipt signer ready (kid %s)", signer.KeyID())

	hub := gateway.NewHub()
	publishers, err := openPublishers(ctx, cfg)
	if err != nil {
		return err
	}
	fanout := publish.NewFanout(cfg.Publish.QueueSize, append(publishers, hub)...)

	b := bank.NewMemory()
	ledger, err := core.New(cfg.LedgerConfig(), b, nil, fanout)
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	restored, err := loadState(cfg.Ledger.SnapshotPath, ledger, b)
	if err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}
	if !restored {
		if err := seedDeposits(b, cfg.Deposits); err != nil {
			return err
		}
	}

	service := market.NewService(ledger, signer, b)

	listener, err := listen(cfg)
	if err != nil {
		return err
	}
	socketServer := NewLedgerServer(service, cfg.Server.MaxWorkers)
	go func() {
		if err := socketServer.Serve(listener); err != nil {
			log.Printf("ERROR: Socket server stopped: %v", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gateway.NewServer(service, hub, cfg.Server.CORSOrigin),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}
	go func() {
		log.Printf("INFO: HTTP gateway listening on %s", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("ERROR: HTTP gateway stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Printf("INFO: Shutting down ledger")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: HTTP gateway shutdown: %v", err)
	}
	if err := listener.Close(); err != nil {
		log.Printf("ERROR: Failed to close listener: %v", err)
	}
	socketServer.Wait()

	if err := fanout.Close(); err != nil {
		log.Printf("ERROR: Failed to flush event publishers: %v", err)
	}
	if dropped := fanout.Dropped(); dropped > 0 {
		log.Printf("WARNING: %d events were dropped by the publish queue", dropped)
	}

	if err := saveState(cfg.Ledger.SnapshotPath, ledger, b); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	log.Printf("INFO: State saved to %s", cfg.Ledger.SnapshotPath)
	return nil
}

// openPublishers connects the configured event sinks. A sink that is
// configured but unreachable stops startup.
func openPublishers(ctx context.Context, cfg config.Config) ([]publish.Publisher, error) {
	var publishers []publish.Publisher
	closeAll := func() {
		for _, p := range publishers {
			_ = p.Close()
		}
	}

	if cfg.Publish.NATSURL != "" {
		sink, err := publish.NewNATSSink(ctx, cfg.Publish.NATSURL, cfg.Publish.NATSStream)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, sink)
	}
	if cfg.Publish.RedisAddr != "" {
		sink, err := publish.NewRedisSink(ctx, cfg.Publish.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
		if err != nil {
			closeAll()
			return nil, err
		}
		publishers = append(publishers, sink)
	}
	if cfg.Publish.PostgresDSN != "" {
		sink, err := publish.NewPostgresSink(ctx, cfg.Publish.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, err
		}
		publishers = append(publishers, sink)
	}

	for _, p := range publishers {
		log.Printf("INFO: Publishing events to %s", p.Name())
	}
	return publishers, nil
}

func seedDeposits(b *bank.Memory, deposits map[string]string) error {
	for addr, raw := range deposits {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("deposit for %s: %w", addr, err)
		}
		if err := b.Deposit(core.NewAddress(addr), amount); err != nil {
			return fmt.Errorf("deposit for %s: %w", addr, err)
		}
	}
	if len(deposits) > 0 {
		log.Printf("INFO: Seeded %d accounts", len(deposits))
	}
	return nil
}
