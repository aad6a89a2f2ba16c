package receipts

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/veraison/go-cose"
)

// KeyAlgorithm names the signing scheme advertised next to the public key.
const KeyAlgorithm = "ECDSA-P256"

// Signer holds the ledger's receipt signing key.
type Signer struct {
	privateKey *ecdsa.PrivateKey // Keep private - sensitive!
	PublicKey  *ecdsa.PublicKey
	keyID      string
	signer     cose.Signer
}

// NewSigner wraps an existing P-256 key.
func NewSigner(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	if privateKey == nil {
		return nil, errors.New("private key is nil")
	}
	if privateKey.Curve != elliptic.P256() {
		return nil, fmt.Errorf("unsupported curve %s, want P-256", privateKey.Curve.Params().Name)
	}

	coseSigner, err := cose.NewSigner(cose.AlgorithmES256, privateKey)
	if err != nil {
		return nil, fmt.Errorf("create COSE signer: %w", err)
	}

	kid, err := KeyID(&privateKey.PublicKey)
	if err != nil {
		return nil, err
	}

	return &Signer{
		privateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		keyID:      kid,
		signer:     coseSigner,
	}, nil
}

// GenerateSigner creates a signer with a fresh P-256 key.
func GenerateSigner() (*Signer, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return NewSigner(privateKey)
}

// LoadSigner reads a PEM encoded EC private key from path. When the file does
// not exist a new key is generated and written there with mode 0600.
func LoadSigner(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s, err := GenerateSigner()
		if err != nil {
			return nil, err
		}
		if err := s.writePrivateKey(path); err != nil {
			return nil, err
		}
		log.Printf("INFO: Generated receipt signing key %s at %s", s.KeyID(), path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, fmt.Errorf("signing key %s: no EC PRIVATE KEY block", path)
	}
	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return NewSigner(privateKey)
}

func (s *Signer) writePrivateKey(path string) error {
	der, err := x509.MarshalECPrivateKey(s.privateKey)
	if err != nil {
		return fmt.Errorf("marshal signing key: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write signing key: %w", err)
	}
	return nil
}

// KeyID is the hex SHA-256 of the PKIX encoded public key, truncated to 16 bytes.
func KeyID(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:16]), nil
}

func (s *Signer) KeyID() string { return s.keyID }

// PublicKeyPEM returns the public key in PEM format
func (s *Signer) PublicKeyPEM() (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(s.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}

	return string(pem.EncodeToMemory(pemBlock)), nil
}
