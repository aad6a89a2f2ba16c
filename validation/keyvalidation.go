package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/cloudx-io/openmarket/receipts"
)

// ParsePublicKeyPEM decodes the ledger's receipt verification key.
func ParsePublicKeyPEM(publicKeyPEM string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(publicKeyPEM)))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("no PUBLIC KEY block in PEM input")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not ECDSA")
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("public key curve %s, want P-256", key.Curve.Params().Name)
	}
	return key, nil
}

// validateKeyID checks that the signer's advertised key id is the one derived
// from the key the caller trusts.
func validateKeyID(publicKey *ecdsa.PublicKey, signedKeyID string, result *BaseValidationResult) bool {
	expected, err := receipts.KeyID(publicKey)
	if err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Key id could not be derived: %v", err))
		return false
	}

	if signedKeyID == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Key id missing from receipt header")
		return false
	}
	if signedKeyID != expected {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Key id mismatch: receipt has %s, trusted key is %s", signedKeyID, expected))
		return false
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Key id matches trusted key: %s", expected))
	return true
}
