package validation

import "github.com/cloudx-io/openmarket/ledgerapi"

// BaseValidationResult contains the checks shared by every signed artefact
type BaseValidationResult struct {
	SignatureValid    bool
	KeyIDMatch        bool
	ValidationDetails []string
}

// ReceiptValidationResult contains validation results specific to settlement receipts
type ReceiptValidationResult struct {
	BaseValidationResult
	AmountsValid        bool
	SettlementHashValid bool
	ExpectationsMet     bool
	Receipt             *ledgerapi.Receipt
}

// IsValid returns true if all receipt validation checks passed
func (r *ReceiptValidationResult) IsValid() bool {
	return r.SignatureValid && r.KeyIDMatch && r.AmountsValid && r.SettlementHashValid && r.ExpectationsMet
}

// ChainValidationResult reports on an exported event history
type ChainValidationResult struct {
	EventsChecked int
	FirstSeq      uint64
	LastSeq       uint64
	HeadHash      string
	// BrokenAt is the sequence number of the first event that failed, if any.
	BrokenAt          *uint64
	ValidationDetails []string
}

func (r *ChainValidationResult) IsValid() bool {
	return r.BrokenAt == nil
}
