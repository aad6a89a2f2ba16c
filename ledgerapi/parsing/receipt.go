package parsing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/openmarket/ledgerapi"
)

// ParseReceipt decodes the receipt carried by a COSE_Sign1 message. The
// signature is not checked here; see validation.VerifyReceipt.
func ParseReceipt(coseBytes ledgerapi.ReceiptCOSE) (*ledgerapi.Receipt, error) {
	payload, err := ExtractCOSEPayload(coseBytes)
	if err != nil {
		return nil, err
	}

	var receipt ledgerapi.Receipt
	if err := cbor.Unmarshal(payload, &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt payload: %w", err)
	}
	return &receipt, nil
}
