package bank

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
)

// Snapshot serialises all balances as CBOR. Receivers are code and are not saved.
func (m *Memory) Snapshot() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.balances))
	for addr, bal := range m.balances {
		out[string(addr)] = bal.String()
	}
	return cbor.Marshal(out)
}

// Restore replaces all balances with a snapshot. On error the bank is unchanged.
func (m *Memory) Restore(data []byte) error {
	var in map[string]string
	if err := cbor.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode bank snapshot: %w", err)
	}

	balances := make(map[core.Address]decimal.Decimal, len(in))
	for addr, raw := range in {
		bal, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", addr, err)
		}
		if bal.IsNegative() {
			return fmt.Errorf("balance of %s is negative", addr)
		}
		balances[core.Address(addr)] = bal
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = balances
	return nil
}
