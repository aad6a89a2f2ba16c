package validation

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/openmarket/ledgerapi"
)

// VerifyCOSESignature verifies an ES256 COSE_Sign1 message against a public key
// and returns the key id found in its unprotected header.
func VerifyCOSESignature(coseBytes ledgerapi.ReceiptCOSE, publicKey *ecdsa.PublicKey) (string, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(coseBytes); err != nil {
		return "", fmt.Errorf("parse COSE_Sign1: %w", err)
	}

	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return "", fmt.Errorf("read algorithm header: %w", err)
	}
	if alg != cose.AlgorithmES256 {
		return "", fmt.Errorf("unexpected COSE algorithm %s, want ES256", alg)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, publicKey)
	if err != nil {
		return "", fmt.Errorf("create verifier: %w", err)
	}

	if err := msg.Verify(nil, verifier); err != nil {
		return "", fmt.Errorf("COSE signature verification failed: %w", err)
	}

	kid, _ := msg.Headers.Unprotected[cose.HeaderLabelKeyID].([]byte)
	return string(kid), nil
}
