package ledgerapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// ReceiptCOSE is the raw COSE_Sign1 encoding of a signed receipt.
type ReceiptCOSE []byte

// ReceiptCOSEBase64 is a standard base64 encoding of ReceiptCOSE, used in JSON responses.
type ReceiptCOSEBase64 string

// ReceiptCOSEURLBase64 is an unpadded URL-safe base64 encoding of ReceiptCOSE.
type ReceiptCOSEURLBase64 string

// ReceiptCOSEGzip is gzipped ReceiptCOSE, URL-safe base64 without padding.
// Used where receipts travel in query strings or headers.
type ReceiptCOSEGzip string

func (r ReceiptCOSE) EncodeBase64() ReceiptCOSEBase64 {
	return ReceiptCOSEBase64(base64.StdEncoding.EncodeToString(r))
}

func (r ReceiptCOSE) EncodeURLSafe() ReceiptCOSEURLBase64 {
	return ReceiptCOSEURLBase64(base64.RawURLEncoding.EncodeToString(r))
}

// CompressGzip compresses the receipt with a fixed header so equal inputs
// always produce equal outputs.
func (r ReceiptCOSE) CompressGzip() (ReceiptCOSEGzip, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := zw.Write(r); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return ReceiptCOSEGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

func (b ReceiptCOSEBase64) Decode() (ReceiptCOSE, error) {
	data, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return ReceiptCOSE(data), nil
}

func (b ReceiptCOSEBase64) CompressGzip() (ReceiptCOSEGzip, error) {
	raw, err := b.Decode()
	if err != nil {
		return "", err
	}
	return raw.CompressGzip()
}

func (b ReceiptCOSEBase64) String() string { return string(b) }

// Decode accepts both padded and unpadded input.
func (u ReceiptCOSEURLBase64) Decode() (ReceiptCOSE, error) {
	s := string(u)
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64url: %w", err)
	}
	return ReceiptCOSE(data), nil
}

func (u ReceiptCOSEURLBase64) String() string { return string(u) }

func (g ReceiptCOSEGzip) Decompress() (ReceiptCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(string(g), "="))
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip: %w", err)
	}
	return ReceiptCOSE(data), nil
}

func (g ReceiptCOSEGzip) String() string { return string(g) }
