package bank

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRejected            = errors.New("recipient rejected transfer")
	ErrInvalidTransfer     = errors.New("invalid transfer")
)

// Receiver is recipient code run before funds land in an account, like a
// payable fallback. Returning an error rejects the whole batch. It receives
// the caller's context, so anything it calls on the ledger is seen as reentrant.
type Receiver func(ctx context.Context, from core.Address, amount decimal.Decimal) error

// Memory is an in-process Bank holding native-currency balances.
type Memory struct {
	mu        sync.Mutex
	balances  map[core.Address]decimal.Decimal
	receivers map[core.Address]Receiver
}

// NewMemory creates an empty bank.
func NewMemory() *Memory {
	return &Memory{
		balances:  make(map[core.Address]decimal.Decimal),
		receivers: make(map[core.Address]Receiver),
	}
}

// Deposit credits an account from outside the system.
func (m *Memory) Deposit(addr core.Address, amount decimal.Decimal) error {
	if addr.IsZero() || !amount.IsPositive() {
		return ErrInvalidTransfer
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[addr] = m.balances[addr].Add(amount)
	return nil
}

// Balance returns an account's balance.
func (m *Memory) Balance(addr core.Address) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[addr]
}

// Total returns the sum of all balances. Transfers never change it.
func (m *Memory) Total() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, b := range m.balances {
		total = total.Add(b)
	}
	return total
}

// SetReceiver installs recipient code for addr. A nil receiver removes it.
func (m *Memory) SetReceiver(addr core.Address, r Receiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r == nil {
		delete(m.receivers, addr)
		return
	}
	m.receivers[addr] = r
}

// Execute applies the transfers in order as one unit.
// Balances are checked first, then every recipient's receiver runs without
// the bank lock held, then the batch is checked again and applied.
func (m *Memory) Execute(ctx context.Context, transfers []core.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	_, err := m.stage(transfers)
	receivers := make([]Receiver, len(transfers))
	for i, t := range transfers {
		receivers[i] = m.receivers[t.To]
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	for i, t := range transfers {
		if receivers[i] == nil {
			continue
		}
		if err := receivers[i](ctx, t.From, t.Amount); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrRejected, t.To, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	staged, err := m.stage(transfers)
	if err != nil {
		return err
	}
	for addr, bal := range staged {
		m.balances[addr] = bal
	}
	return nil
}

// stage computes post-transfer balances for the touched accounts. Requires m.mu.
func (m *Memory) stage(transfers []core.Transfer) (map[core.Address]decimal.Decimal, error) {
	staged := make(map[core.Address]decimal.Decimal)
	balance := func(addr core.Address) decimal.Decimal {
		if b, ok := staged[addr]; ok {
			return b
		}
		return m.balances[addr]
	}

	for _, t := range transfers {
		if t.From.IsZero() || t.To.IsZero() || !t.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: %s -> %s amount %s", ErrInvalidTransfer, t.From, t.To, t.Amount)
		}
		from := balance(t.From)
		if from.LessThan(t.Amount) {
			return nil, fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, t.From, from, t.Amount)
		}
		staged[t.From] = from.Sub(t.Amount)
		staged[t.To] = balance(t.To).Add(t.Amount)
	}
	return staged, nil
}
