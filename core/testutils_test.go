package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/bank"
	"github.com/cloudx-io/openmarket/core"
)

const (
	alice = core.Address("0xa11ce")
	bob   = core.Address("0xb0b")
	carol = core.Address("0xca401")
	dave  = core.Address("0xda7e")
)

// fakeClock is a settable clock for driving auction windows.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []core.Event
}

func (s *recordingSink) Emit(ev core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) kinds() []core.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]core.EventKind, len(s.events))
	for i, ev := range s.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

type fixture struct {
	ledger *core.Ledger
	bank   *bank.Memory
	clock  *fakeClock
	sink   *recordingSink
}

func newFixture(t *testing.T, mode core.RefundMode) *fixture {
	t.Helper()

	b := bank.NewMemory()
	for _, addr := range []core.Address{alice, bob, carol, dave} {
		assert.NoError(t, b.Deposit(addr, dec(1000)))
	}

	clock := newFakeClock()
	sink := &recordingSink{}
	l, err := core.New(core.Config{RefundMode: mode}, b, clock, sink)
	assert.NoError(t, err)

	return &fixture{ledger: l, bank: b, clock: clock, sink: sink}
}

// mint creates an item owned by creator with the given royalty.
func (f *fixture) mint(t *testing.T, creator core.Address, royalty int) core.ItemID {
	t.Helper()
	id, err := f.ledger.Mint(context.Background(), creator, "ipfs://meta", dec(0), royalty)
	assert.NoError(t, err)
	return id
}

func (f *fixture) item(t *testing.T, id core.ItemID) core.Item {
	t.Helper()
	it, err := f.ledger.Item(id)
	assert.NoError(t, err)
	return it
}

func (f *fixture) balance(addr core.Address) string {
	return f.bank.Balance(addr).String()
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
