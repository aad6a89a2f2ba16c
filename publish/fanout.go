package publish

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudx-io/openmarket/core"
)

// Publisher delivers committed ledger events to one external system.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev core.Event) error
	Close() error
}

const defaultPublishTimeout = 5 * time.Second

// Fanout is a core.EventSink that hands events to a background worker which
// forwards them to every publisher in order. Emit never blocks: when the
// queue is full the event is dropped and counted. Consumers that need every
// event replay the journal through the events API.
type Fanout struct {
	mu         sync.RWMutex
	closed     bool
	queue      chan core.Event
	publishers []Publisher
	timeout    time.Duration
	done       chan struct{}
	dropped    atomic.Uint64
	failed     atomic.Uint64
}

func NewFanout(queueSize int, publishers ...Publisher) *Fanout {
	if queueSize <= 0 {
		queueSize = 1
	}
	f := &Fanout{
		queue:      make(chan core.Event, queueSize),
		publishers: publishers,
		timeout:    defaultPublishTimeout,
		done:       make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *Fanout) Emit(ev core.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}

	select {
	case f.queue <- ev:
	default:
		n := f.dropped.Add(1)
		log.Printf("WARNING: Event queue full, dropped event %d (%s); %d dropped so far", ev.Seq, ev.Kind, n)
	}
}

func (f *Fanout) run() {
	defer close(f.done)
	for ev := range f.queue {
		for _, p := range f.publishers {
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			if err := p.Publish(ctx, ev); err != nil {
				f.failed.Add(1)
				log.Printf("ERROR: %s failed to publish event %d for item %d: %v", p.Name(), ev.Seq, ev.ItemID, err)
			}
			cancel()
		}
	}
}

// Close stops accepting events, drains the queue and closes every publisher.
func (f *Fanout) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.done
		return nil
	}
	f.closed = true
	close(f.queue)
	f.mu.Unlock()

	<-f.done

	var firstErr error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			log.Printf("ERROR: Failed to close %s: %v", p.Name(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Dropped is the number of events discarded because the queue was full.
func (f *Fanout) Dropped() uint64 { return f.dropped.Load() }

// Failed is the number of publish attempts that returned an error.
func (f *Fanout) Failed() uint64 { return f.failed.Load() }

func encodeEvent(ev core.Event) ([]byte, error) {
	return json.Marshal(ev)
}
