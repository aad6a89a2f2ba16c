package validation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/ledgerapi"
	"github.com/cloudx-io/openmarket/ledgerapi/parsing"
)

// ReceiptValidationInput contains all inputs needed for receipt validation.
// Exactly one of ReceiptCOSEBase64 and ReceiptCOSEGzip must be set.
type ReceiptValidationInput struct {
	ReceiptCOSEBase64 ledgerapi.ReceiptCOSEBase64 // As returned in LedgerResponse.Receipt
	ReceiptCOSEGzip   ledgerapi.ReceiptCOSEGzip   // Compact form from gateway headers
	PublicKeyPEM      string

	// Optional expectations; zero values are not checked.
	ItemID *core.ItemID
	Buyer  core.Address
	Seller core.Address
	Price  *decimal.Decimal
}

// VerifyReceipt checks the signature of a receipt against a trusted key,
// decodes it and checks that royalty and seller proceeds add up to the price.
func VerifyReceipt(coseBytes ledgerapi.ReceiptCOSE, publicKeyPEM string) (*ledgerapi.Receipt, error) {
	publicKey, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, err
	}
	if _, err := VerifyCOSESignature(coseBytes, publicKey); err != nil {
		return nil, err
	}

	receipt, err := parsing.ParseReceipt(coseBytes)
	if err != nil {
		return nil, err
	}

	settlement, err := receipt.Settlement()
	if err != nil {
		return nil, fmt.Errorf("decode receipt amounts: %w", err)
	}
	if !settlement.Royalty.Add(settlement.Proceeds).Equal(settlement.Price) {
		return nil, fmt.Errorf("receipt amounts do not add up: royalty %s + proceeds %s != price %s",
			settlement.Royalty, settlement.Proceeds, settlement.Price)
	}
	return receipt, nil
}

// ValidateReceipt performs every receipt check and reports each outcome.
//
// Returns:
//   - ReceiptValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, bad key)
func ValidateReceipt(input *ReceiptValidationInput) (*ReceiptValidationResult, error) {
	coseBytes, err := input.receiptBytes()
	if err != nil {
		return nil, err
	}

	publicKey, err := ParsePublicKeyPEM(input.PublicKeyPEM)
	if err != nil {
		return nil, err
	}

	receipt, err := parsing.ParseReceipt(coseBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse receipt: %w", err)
	}

	result := &ReceiptValidationResult{Receipt: receipt}

	kid, sigErr := VerifyCOSESignature(coseBytes, publicKey)
	if sigErr != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Signature invalid: %v", sigErr))
	} else {
		result.SignatureValid = true
		result.ValidationDetails = append(result.ValidationDetails, "Signature verified with trusted key")
		result.KeyIDMatch = validateKeyID(publicKey, kid, &result.BaseValidationResult)
	}

	settlement, err := receipt.Settlement()
	if err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Receipt amounts unreadable: %v", err))
		return result, nil
	}

	result.AmountsValid = validateAmounts(settlement, result)
	result.SettlementHashValid = validateSettlementHash(receipt, settlement, result)
	result.ExpectationsMet = validateExpectations(input, settlement, result)

	return result, nil
}

func (in *ReceiptValidationInput) receiptBytes() (ledgerapi.ReceiptCOSE, error) {
	switch {
	case in.ReceiptCOSEBase64 != "" && in.ReceiptCOSEGzip != "":
		return nil, errors.New("both base64 and gzip receipts supplied")
	case in.ReceiptCOSEBase64 != "":
		return in.ReceiptCOSEBase64.Decode()
	case in.ReceiptCOSEGzip != "":
		data, err := in.ReceiptCOSEGzip.Decompress()
		if err != nil {
			return nil, fmt.Errorf("decompress receipt: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("no receipt supplied")
	}
}

func validateAmounts(s core.Settlement, result *ReceiptValidationResult) bool {
	if !core.ValidAmount(s.Price) || !core.ValidAmount(s.Royalty) || !core.ValidAmount(s.Proceeds) {
		result.ValidationDetails = append(result.ValidationDetails, "Amounts must be non-negative integers")
		return false
	}
	if !s.Royalty.Add(s.Proceeds).Equal(s.Price) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Amount mismatch: royalty %s + proceeds %s != price %s", s.Royalty, s.Proceeds, s.Price))
		return false
	}
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Amounts add up: %s = %s + %s", s.Price, s.Royalty, s.Proceeds))
	return true
}

func validateSettlementHash(r *ledgerapi.Receipt, s core.Settlement, result *ReceiptValidationResult) bool {
	computed := core.ComputeSettlementHash(s)
	if computed == r.Hash {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Settlement hash validation passed: %s", computed))
		return true
	}
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Settlement hash mismatch: computed %s, receipt has %s", computed, r.Hash))
	return false
}

func validateExpectations(input *ReceiptValidationInput, s core.Settlement, result *ReceiptValidationResult) bool {
	ok := true
	if input.ItemID != nil && *input.ItemID != s.ItemID {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Item mismatch: expected %d, receipt has %d", *input.ItemID, s.ItemID))
		ok = false
	}
	if !input.Buyer.IsZero() && core.NewAddress(string(input.Buyer)) != s.Buyer {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Buyer mismatch: expected %s, receipt has %s", input.Buyer, s.Buyer))
		ok = false
	}
	if !input.Seller.IsZero() && core.NewAddress(string(input.Seller)) != s.Seller {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Seller mismatch: expected %s, receipt has %s", input.Seller, s.Seller))
		ok = false
	}
	if input.Price != nil && !input.Price.Equal(s.Price) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Price mismatch: expected %s, receipt has %s", input.Price, s.Price))
		ok = false
	}
	if ok {
		result.ValidationDetails = append(result.ValidationDetails, "Receipt matches expected settlement")
	}
	return ok
}
