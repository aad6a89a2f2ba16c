package gateway

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/cloudx-io/openmarket/ledgerapi"
)

// statusFor maps ledger error codes onto HTTP statuses.
func statusFor(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case "NotOwner":
		return http.StatusForbidden
	case "ZeroAddress":
		return http.StatusUnauthorized
	case "ItemNotFound", "UnknownRequest":
		return http.StatusNotFound
	case "AlreadyListed", "NotForSale", "AuctionActive", "NoAuctionActive",
		"AuctionStillRunning", "AuctionEnded", "NothingToWithdraw", "ReentrantCall":
		return http.StatusConflict
	case "InvalidRoyalty", "BidTooLow", "InsufficientFunds", "InvalidAmount",
		"InvalidDuration", "BadRequest":
		return http.StatusUnprocessableEntity
	case "TransferFailed":
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func writeResponse(w http.ResponseWriter, resp ledgerapi.LedgerResponse) {
	writeJSON(w, statusFor(resp.Code), resp)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ledgerapi.LedgerResponse{Type: "error", Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}
