package core

import "errors"

// Authorization
var (
	ErrNotOwner    = errors.New("caller is not the item owner")
	ErrZeroAddress = errors.New("address must not be empty")
)

// State conflicts
var (
	ErrItemNotFound        = errors.New("item not minted")
	ErrAlreadyListed       = errors.New("item is already listed for sale")
	ErrNotForSale          = errors.New("item is not for sale")
	ErrAuctionActive       = errors.New("item is in an active auction")
	ErrNoAuctionActive     = errors.New("item is not in auction")
	ErrAuctionStillRunning = errors.New("auction has not ended yet")
	ErrAuctionEnded        = errors.New("auction has already ended")
	ErrNothingToWithdraw   = errors.New("no pending refund to withdraw")
	ErrReentrantCall       = errors.New("reentrant call into ledger rejected")
)

// Validation
var (
	ErrInvalidRoyalty    = errors.New("royalty percentage must be between 0 and 50")
	ErrBidTooLow         = errors.New("bid must exceed the current highest bid")
	ErrInsufficientFunds = errors.New("payment is below the listing price")
	ErrInvalidAmount     = errors.New("amount must be a non-negative whole number of units")
	ErrInvalidDuration   = errors.New("auction duration must not be negative")
)

// Payment
var ErrTransferFailed = errors.New("value transfer failed")

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotOwner, "NotOwner"},
	{ErrZeroAddress, "ZeroAddress"},
	{ErrItemNotFound, "ItemNotFound"},
	{ErrAlreadyListed, "AlreadyListed"},
	{ErrNotForSale, "NotForSale"},
	{ErrAuctionActive, "AuctionActive"},
	{ErrNoAuctionActive, "NoAuctionActive"},
	{ErrAuctionStillRunning, "AuctionStillRunning"},
	{ErrAuctionEnded, "AuctionEnded"},
	{ErrNothingToWithdraw, "NothingToWithdraw"},
	{ErrReentrantCall, "ReentrantCall"},
	{ErrInvalidRoyalty, "InvalidRoyalty"},
	{ErrBidTooLow, "BidTooLow"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidDuration, "InvalidDuration"},
	{ErrTransferFailed, "TransferFailed"},
}

// ErrorCode maps a ledger error to its stable wire code. Unknown errors map to "Internal".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "Internal"
}
