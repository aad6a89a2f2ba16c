package receipts

import (
	"crypto/rand"
	"fmt"
	"log"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/ledgerapi"
)

// Sign turns a settlement into a COSE_Sign1 receipt (ES256, CBOR payload).
// The key id travels in the unprotected header so verifiers can pick the key.
func (s *Signer) Sign(settlement core.Settlement) (ledgerapi.ReceiptCOSE, *ledgerapi.Receipt, error) {
	receipt := ledgerapi.NewReceipt(uuid.NewString(), settlement)

	payload, err := cbor.Marshal(receipt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal receipt: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Headers.Protected[cose.HeaderLabelContentType] = "application/cbor"
	msg.Headers.Unprotected[cose.HeaderLabelKeyID] = []byte(s.keyID)
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, s.signer); err != nil {
		log.Printf("ERROR: Receipt signing failed for item %d: %v", settlement.ItemID, err)
		return nil, nil, fmt.Errorf("sign receipt: %w", err)
	}

	coseBytes, err := msg.MarshalCBOR()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal COSE_Sign1: %w", err)
	}

	return ledgerapi.ReceiptCOSE(coseBytes), &receipt, nil
}
