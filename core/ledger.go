package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultEscrow is the account that holds bids while an auction runs.
const DefaultEscrow Address = "ledger:escrow"

// Clock supplies the current time. Auction windows are evaluated against it lazily.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Bank moves native currency between accounts.
// Execute must apply every transfer or none of them. Any receiver code it runs
// should be handed ctx, so calls back into the ledger are rejected at once;
// calls made with any other context are rejected after reentryWait.
type Bank interface {
	Execute(ctx context.Context, transfers []Transfer) error
}

// Config holds the ledger's static settings.
type Config struct {
	// Escrow is the ledger's own account. Defaults to DefaultEscrow.
	Escrow Address
	// RefundMode defaults to RefundPush.
	RefundMode RefundMode
	// EventRetention caps the in-memory event journal; 0 keeps everything.
	EventRetention int
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

// callKey marks a context as belonging to a call already executing inside a ledger.
type callKey struct{}

// Ledger is the marketplace state machine: item registry, listings, auctions and settlement.
//
// callSlot serialises state-changing calls for their whole duration, bank
// transfers included. stateMu guards the data itself and is held only
// while reading or committing, so receivers running inside a transfer can
// still read the pre-call state.
type Ledger struct {
	callSlot chan struct{}
	paying   atomic.Bool
	stateMu  sync.RWMutex

	bank       Bank
	clock      Clock
	sink       EventSink
	escrow     Address
	refundMode RefundMode

	items   registry
	pending map[Address]decimal.Decimal
	journal journal
}

// New creates an empty ledger. A nil clock uses SystemClock and a nil sink drops events.
func New(cfg Config, bank Bank, clock Clock, sink EventSink) (*Ledger, error) {
	if bank == nil {
		return nil, fmt.Errorf("ledger requires a bank")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if sink == nil {
		sink = nopSink{}
	}

	escrow := cfg.Escrow
	if escrow.IsZero() {
		escrow = DefaultEscrow
	}

	mode := cfg.RefundMode
	switch mode {
	case "":
		mode = RefundPush
	case RefundPush, RefundPull:
	default:
		return nil, fmt.Errorf("unknown refund mode %q", mode)
	}

	return &Ledger{
		callSlot:   make(chan struct{}, 1),
		bank:       bank,
		clock:      clock,
		sink:       sink,
		escrow:     escrow,
		refundMode: mode,
		pending:    make(map[Address]decimal.Decimal),
		journal:    journal{retention: cfg.EventRetention},
	}, nil
}

// Escrow returns the ledger's escrow account.
func (l *Ledger) Escrow() Address {
	return l.escrow
}

// RefundMode returns how displaced bidders are refunded.
func (l *Ledger) RefundMode() RefundMode {
	return l.refundMode
}

// reentryWait bounds how long a call waits for the call slot while a payment
// is in flight. Receiver code that calls back with a context of its own
// cannot be told apart from a concurrent caller, and would otherwise wait on
// the call it is running inside.
const reentryWait = 100 * time.Millisecond

// enter acquires the call slot, rejecting calls made from inside another call on this ledger.
// The returned context carries the execution token and must be passed to the bank.
func (l *Ledger) enter(ctx context.Context, caller Address) (context.Context, func(), error) {
	if owner, ok := ctx.Value(callKey{}).(*Ledger); ok && owner == l {
		return nil, nil, ErrReentrantCall
	}
	if caller.IsZero() {
		return nil, nil, ErrZeroAddress
	}
	if err := l.acquire(ctx); err != nil {
		return nil, nil, err
	}
	return context.WithValue(ctx, callKey{}, l), l.release, nil
}

// acquire takes the call slot. While a payment is running the wait is
// bounded by reentryWait and ends in ErrReentrantCall.
func (l *Ledger) acquire(ctx context.Context) error {
	if !l.paying.Load() {
		select {
		case l.callSlot <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timer := time.NewTimer(reentryWait)
	defer timer.Stop()
	select {
	case l.callSlot <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrReentrantCall
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Ledger) release() {
	<-l.callSlot
}

// load reads an item for a call holding the call slot.
func (l *Ledger) load(id ItemID) (Item, error) {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()

	it, ok := l.items.get(id)
	if !ok {
		return Item{}, fmt.Errorf("item %d: %w", id, ErrItemNotFound)
	}
	return it, nil
}

// pay runs the transfers through the bank, wrapping any failure as ErrTransferFailed.
func (l *Ledger) pay(ctx context.Context, transfers []Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	l.paying.Store(true)
	defer l.paying.Store(false)
	if err := l.bank.Execute(ctx, transfers); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

// commit stores the updated item and appends the call's events in order.
func (l *Ledger) commit(it *Item, events ...Event) []Event {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	if it != nil {
		l.items.put(*it)
	}
	return l.record(events)
}

// record appends events to the journal and forwards them to the sink. Requires stateMu.
func (l *Ledger) record(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		ev = l.journal.append(ev)
		l.sink.Emit(ev)
		out = append(out, ev)
	}
	return out
}

// ItemCount returns the number of minted items; ids run from 0 to ItemCount()-1.
func (l *Ledger) ItemCount() int {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.items.count()
}

// Item returns a snapshot of one item.
func (l *Ledger) Item(id ItemID) (Item, error) {
	return l.load(id)
}

// MetadataRef returns the opaque token URI stored at mint.
func (l *Ledger) MetadataRef(id ItemID) (string, error) {
	it, err := l.load(id)
	if err != nil {
		return "", err
	}
	return it.MetadataRef, nil
}

// Items scans the registry in id order and returns the items matching f.
func (l *Ledger) Items(f Filter) []Item {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()

	out := make([]Item, 0)
	for _, it := range l.items.items {
		if it.Minted && f.matches(it) {
			out = append(out, it)
		}
	}
	return out
}

// PendingReturn returns the refund owed to addr in pull mode.
func (l *Ledger) PendingReturn(addr Address) decimal.Decimal {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.pending[addr]
}

// Events returns up to limit events starting at sequence number from. limit <= 0 means all.
func (l *Ledger) Events(from uint64, limit int) []Event {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.journal.since(from, limit)
}

// EventCount returns the sequence number the next event will get.
func (l *Ledger) EventCount() uint64 {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.journal.next
}

// HeadHash returns the hash of the latest event, or "" before the first one.
func (l *Ledger) HeadHash() string {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.journal.head
}

func (l *Ledger) now() time.Time {
	return l.clock.Now()
}
