package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/openmarket/config"
	"github.com/cloudx-io/openmarket/ledgerapi"
)

const (
	readTimeout    = 30 * time.Second
	maxRequestSize = 1 << 20
)

// Processor runs one ledger request.
type Processor interface {
	Process(ctx context.Context, req ledgerapi.LedgerRequest) ledgerapi.LedgerResponse
}

// LedgerServer answers one JSON request per connection on the socket
// protocol, bounded by a fixed pool of workers.
type LedgerServer struct {
	processor Processor
	semaphore chan struct{}
	wg        sync.WaitGroup
}

func NewLedgerServer(processor Processor, maxWorkers int) *LedgerServer {
	return &LedgerServer{
		processor: processor,
		semaphore: make(chan struct{}, maxWorkers),
	}
}

// listen opens the configured transport.
func listen(cfg config.Config) (net.Listener, error) {
	switch cfg.Server.Transport {
	case config.TransportVsock:
		listener, err := vsock.Listen(cfg.Server.VsockPort, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		log.Printf("INFO: Ledger listening on vsock port %d", cfg.Server.VsockPort)
		return listener, nil
	default:
		listener, err := net.Listen("tcp", cfg.Server.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to create tcp listener: %w", err)
		}
		log.Printf("INFO: Ledger listening on %s", listener.Addr())
		return listener, nil
	}
}

// Serve accepts connections until the listener is closed. Connections beyond
// the worker pool are rejected immediately rather than queued.
func (s *LedgerServer) Serve(listener net.Listener) error {
	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", cap(s.semaphore))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("ERROR: Failed to accept connection: %v", err)
			continue
		}

		select {
		case s.semaphore <- struct{}{}:
			s.wg.Add(1)
			go func(c net.Conn) {
				defer func() {
					<-s.semaphore
					s.wg.Done()
				}()
				s.handleConnection(c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

// Wait blocks until in-flight connections finish.
func (s *LedgerServer) Wait() {
	s.wg.Wait()
}

func (s *LedgerServer) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic recovered in handleConnection: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	var req ledgerapi.LedgerRequest
	var resp ledgerapi.LedgerResponse
	if err := json.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&req); err != nil {
		log.Printf("ERROR: Failed to decode request: %v", err)
		resp = ledgerapi.LedgerResponse{
			Type:    "error",
			Code:    "BadRequest",
			Message: fmt.Sprintf("Failed to decode request: %v", err),
		}
	} else {
		resp = s.processor.Process(context.Background(), req)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(readTimeout))
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}
