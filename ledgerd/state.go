package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/openmarket/bank"
	"github.com/cloudx-io/openmarket/core"
)

// stateFile is what the daemon persists between runs: the ledger and the
// balances backing its escrow must be restored together.
type stateFile struct {
	Ledger []byte `cbor:"ledger"`
	Bank   []byte `cbor:"bank"`
}

// loadState restores the ledger and bank from path. It reports false when
// there is no state to restore.
func loadState(path string, ledger *core.Ledger, b *bank.Memory) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read state: %w", err)
	}

	var st stateFile
	if err := cbor.Unmarshal(data, &st); err != nil {
		return false, fmt.Errorf("decode state: %w", err)
	}
	// Both restores leave their target untouched on error. The balances are
	// checked on a scratch bank first so neither side commits unless both can.
	if err := bank.NewMemory().Restore(st.Bank); err != nil {
		return false, err
	}
	if err := ledger.Restore(st.Ledger); err != nil {
		return false, err
	}
	if err := b.Restore(st.Bank); err != nil {
		return false, err
	}
	log.Printf("INFO: Restored %d items and %d events from %s", ledger.ItemCount(), ledger.EventCount(), path)
	return true, nil
}

// saveState writes the state atomically through a temporary file.
func saveState(path string, ledger *core.Ledger, b *bank.Memory) error {
	var st stateFile
	var err error
	if st.Ledger, err = ledger.Snapshot(); err != nil {
		return fmt.Errorf("snapshot ledger: %w", err)
	}
	if st.Bank, err = b.Snapshot(); err != nil {
		return fmt.Errorf("snapshot bank: %w", err)
	}
	data, err := cbor.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ledger-state-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
