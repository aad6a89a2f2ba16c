package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/ledgerapi"
	"github.com/cloudx-io/openmarket/validation"
)

func main() {
	var (
		eventsInput  = flag.String("events", "", "Events JSON: a ledger events response or a bare array (file path or inline JSON)")
		anchor       = flag.String("anchor", "", "Hash the first event must link to")
		expectHead   = flag.String("head", "", "Expected head hash after the last event")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		help         = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help {
		showUsage()
		os.Exit(0)
	}

	if *eventsInput == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --events is required\n")
		os.Exit(1)
	}

	raw, err := readJSONInput(*eventsInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading events: %v\n", err)
		os.Exit(2)
	}

	events, head, err := decodeEvents(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing events: %v\n", err)
		os.Exit(2)
	}
	if *expectHead == "" {
		*expectHead = head
	}

	result := validation.VerifyEventChain(events, *anchor)
	headOK := *expectHead == "" || *expectHead == result.HeadHash
	if !headOK {
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("Head mismatch: expected %s, chain ends at %s", *expectHead, result.HeadHash))
	}

	if *outputFormat == "json" {
		outputJSON(result, headOK)
	} else {
		outputText(result, headOK)
	}

	if !result.IsValid() || !headOK {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	fmt.Println("Event Chain Validator")
	fmt.Println()
	fmt.Println("Recomputes the hash chain of market events exported by the ledger.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  chain-validator --events <path|json> [--anchor <hash>] [--head <hash>] [--format text|json]")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Chain intact")
	fmt.Println("  1 - Chain broken or head mismatch")
	fmt.Println("  2 - Invalid input or runtime error")
}

func readJSONInput(input string) ([]byte, error) {
	// Try reading as file first
	if data, err := os.ReadFile(input); err == nil {
		return data, nil
	}
	// Treat as inline JSON
	return []byte(input), nil
}

// decodeEvents accepts either a full ledger response or a bare event array.
func decodeEvents(raw []byte) ([]core.Event, string, error) {
	var resp ledgerapi.LedgerResponse
	if err := json.Unmarshal(raw, &resp); err == nil && resp.Type != "" {
		return resp.Events, resp.HeadHash, nil
	}

	var events []core.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, "", err
	}
	return events, "", nil
}

func outputText(result *validation.ChainValidationResult, headOK bool) {
	fmt.Println("Event Chain Validator")
	fmt.Println("=====================")
	fmt.Println()
	fmt.Printf("  Events Checked:  %d\n", result.EventsChecked)
	fmt.Printf("  Sequence Range:  %d..%d\n", result.FirstSeq, result.LastSeq)
	fmt.Printf("  Head Hash:       %s\n", result.HeadHash)
	fmt.Printf("  Head Matches:    %v\n", headOK)

	fmt.Println()
	fmt.Println("Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}

	fmt.Println()
	fmt.Println("=====================")
	if result.IsValid() && headOK {
		fmt.Println("VALIDATION: ✓ PASSED")
	} else {
		fmt.Println("VALIDATION: ✗ FAILED")
	}
}

func outputJSON(result *validation.ChainValidationResult, headOK bool) {
	output := map[string]any{
		"valid":          result.IsValid() && headOK,
		"events_checked": result.EventsChecked,
		"first_seq":      result.FirstSeq,
		"last_seq":       result.LastSeq,
		"head_hash":      result.HeadHash,
		"broken_at":      result.BrokenAt,
		"head_matches":   headOK,
		"details":        result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(string(data))
}
