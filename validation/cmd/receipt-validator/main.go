package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/ledgerapi"
	"github.com/cloudx-io/openmarket/validation"
)

// plainTextHandler is a simple slog handler that writes plain text to stdout
// without timestamps or log levels - appropriate for CLI output
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *plainTextHandler) WithGroup(_ string) slog.Handler {
	return h
}

var logger = slog.New(&plainTextHandler{})

func main() {
	var (
		responsePath  = flag.String("response", "", "Path to a ledger response JSON file carrying a receipt")
		gzipReceipt   = flag.String("receipt-gzip", "", "Compact gzip receipt, as sent in the X-Settlement-Receipt header")
		publicKeyPath = flag.String("public-key", "", "Path to the ledger's public key PEM file (required)")
		itemID        = flag.Int64("item", -1, "Expected item id")
		buyer         = flag.String("buyer", "", "Expected buyer address")
		seller        = flag.String("seller", "", "Expected seller address")
		price         = flag.String("price", "", "Expected price in smallest units")
		outputFormat  = flag.String("format", "text", "Output format: text or json")
		help          = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	missing := *publicKeyPath == "" || (*responsePath == "" && *gzipReceipt == "")
	if *help || missing {
		showUsage()
		if missing {
			os.Exit(1)
		}
		os.Exit(0)
	}

	publicKey, err := os.ReadFile(*publicKeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading public key: %v\n", err)
		os.Exit(2)
	}

	input := &validation.ReceiptValidationInput{
		ReceiptCOSEGzip: ledgerapi.ReceiptCOSEGzip(strings.TrimSpace(*gzipReceipt)),
		PublicKeyPEM:    string(publicKey),
		Buyer:           core.Address(*buyer),
		Seller:          core.Address(*seller),
	}

	if *responsePath != "" {
		resp, err := readLedgerResponse(*responsePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading response: %v\n", err)
			os.Exit(2)
		}
		input.ReceiptCOSEBase64 = resp.Receipt
	}
	if *itemID >= 0 {
		id := core.ItemID(*itemID)
		input.ItemID = &id
	}
	if *price != "" {
		p, err := decimal.NewFromString(*price)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --price: %v\n", err)
			os.Exit(2)
		}
		input.Price = &p
	}

	result, err := validation.ValidateReceipt(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		if err := outputJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
			os.Exit(2)
		}
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	logger.Info("Settlement Receipt Validator")
	logger.Info("")
	logger.Info("Verifies a signed settlement receipt issued by the market ledger.")
	logger.Info("")
	logger.Info("Usage:")
	logger.Info("  receipt-validator --public-key <pem> (--response <path> | --receipt-gzip <value>) [options]")
	logger.Info("")
	logger.Info("Required Flags:")
	logger.Info("  --public-key <path>               Path to the ledger public key PEM file")
	logger.Info("  --response <path>                 Ledger response JSON with a receipt field")
	logger.Info("  --receipt-gzip <value>            Compact receipt from the gateway header")
	logger.Info("")
	logger.Info("Optional Flags:")
	logger.Info("  --item <id>                       Expected item id")
	logger.Info("  --buyer <address>                 Expected buyer")
	logger.Info("  --seller <address>                Expected seller")
	logger.Info("  --price <amount>                  Expected price")
	logger.Info("  --format <text|json>              Output format (default: text)")
	logger.Info("  --help                            Show this help message")
	logger.Info("")
	logger.Info("Exit Codes:")
	logger.Info("  0 - Validation passed")
	logger.Info("  1 - Validation failed")
	logger.Info("  2 - Invalid input or runtime error")
}

func readLedgerResponse(path string) (*ledgerapi.LedgerResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var resp ledgerapi.LedgerResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if resp.Receipt == "" {
		return nil, fmt.Errorf("missing receipt field in ledger response")
	}

	return &resp, nil
}

func outputText(result *validation.ReceiptValidationResult) {
	logger.Info("Settlement Receipt Validator")
	logger.Info("============================")
	logger.Info("")

	if r := result.Receipt; r != nil {
		logger.Info("Receipt:")
		logger.Info(fmt.Sprintf("  ID:       %s", r.ID))
		logger.Info(fmt.Sprintf("  Item:     %d", r.ItemID))
		logger.Info(fmt.Sprintf("  Seller:   %s", r.Seller))
		logger.Info(fmt.Sprintf("  Buyer:    %s", r.Buyer))
		logger.Info(fmt.Sprintf("  Price:    %s (royalty %s, proceeds %s)", r.Price, r.Royalty, r.Proceeds))
		logger.Info("")
	}

	logger.Info("Summary:")
	logger.Info(fmt.Sprintf("  Signature Valid:        %v", result.SignatureValid))
	logger.Info(fmt.Sprintf("  Key ID Match:           %v", result.KeyIDMatch))
	logger.Info(fmt.Sprintf("  Amounts Valid:          %v", result.AmountsValid))
	logger.Info(fmt.Sprintf("  Settlement Hash Valid:  %v", result.SettlementHashValid))
	logger.Info(fmt.Sprintf("  Expectations Met:       %v", result.ExpectationsMet))

	logger.Info("")
	logger.Info("Details:")
	for _, detail := range result.ValidationDetails {
		logger.Info(fmt.Sprintf("  - %s", detail))
	}

	logger.Info("")
	logger.Info("============================")
	if result.IsValid() {
		logger.Info("VALIDATION: ✓ PASSED")
		logger.Info("Exit Code: 0")
	} else {
		logger.Info("VALIDATION: ✗ FAILED")
		logger.Info("Exit Code: 1")
	}
}

func outputJSON(result *validation.ReceiptValidationResult) error {
	output := map[string]any{
		"valid":                 result.IsValid(),
		"signature_valid":       result.SignatureValid,
		"key_id_match":          result.KeyIDMatch,
		"amounts_valid":         result.AmountsValid,
		"settlement_hash_valid": result.SettlementHashValid,
		"expectations_met":      result.ExpectationsMet,
		"receipt":               result.Receipt,
		"details":               result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	logger.Info(string(data))
	return nil
}
