package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ItemID is the dense registry index assigned at mint time.
type ItemID uint64

// Address identifies an account: a wallet, a contract, or the ledger's own escrow.
// The empty address means "none".
type Address string

// NewAddress normalises an account identifier so lookups are case-insensitive.
func NewAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

// IsZero reports whether the address is the "none" identity.
func (a Address) IsZero() bool {
	return a == ""
}

func (a Address) String() string {
	return string(a)
}

// ItemState is derived from the sale and auction flags.
type ItemState string

const (
	StateIdle       ItemState = "idle"
	StateListed     ItemState = "listed"
	StateAuctioning ItemState = "auctioning"
)

// Item is a snapshot of one registry entry.
type Item struct {
	ID                ItemID          `json:"id"`
	Creator           Address         `json:"creator"`
	Owner             Address         `json:"owner"`
	MetadataRef       string          `json:"metadata_ref"`
	Price             decimal.Decimal `json:"price"`
	RoyaltyPercentage int             `json:"royalty_percentage"`
	ForSale           bool            `json:"for_sale"`
	InAuction         bool            `json:"in_auction"`
	AuctionStart      time.Time       `json:"auction_start,omitzero"`
	AuctionEnd        time.Time       `json:"auction_end,omitzero"`
	HighestBid        decimal.Decimal `json:"highest_bid"`
	HighestBidder     Address         `json:"highest_bidder,omitempty"`
	Minted            bool            `json:"minted"`
}

// State returns which of the three mutually exclusive states the item is in.
func (it Item) State() ItemState {
	switch {
	case it.InAuction:
		return StateAuctioning
	case it.ForSale:
		return StateListed
	default:
		return StateIdle
	}
}

// AuctionEnded reports whether the auction window has elapsed at now.
func (it Item) AuctionEnded(now time.Time) bool {
	return it.InAuction && !now.Before(it.AuctionEnd)
}

// Settlement describes the funds distributed when an item changes hands for value.
type Settlement struct {
	ItemID    ItemID          `json:"item_id"`
	Seller    Address         `json:"seller"`
	Buyer     Address         `json:"buyer"`
	Creator   Address         `json:"creator"`
	Price     decimal.Decimal `json:"price"`
	Royalty   decimal.Decimal `json:"royalty"`
	Proceeds  decimal.Decimal `json:"proceeds"`
	EventSeq  uint64          `json:"event_seq"`
	EventHash string          `json:"event_hash"`
	SettledAt time.Time       `json:"settled_at"`
}

// Transfer is one leg of a value movement executed by a Bank.
type Transfer struct {
	From   Address
	To     Address
	Amount decimal.Decimal
}

// Filter selects items for Items. Zero fields match everything.
type Filter struct {
	Owner   Address
	Creator Address
	State   ItemState
}

func (f Filter) matches(it Item) bool {
	if !f.Owner.IsZero() && it.Owner != f.Owner {
		return false
	}
	if !f.Creator.IsZero() && it.Creator != f.Creator {
		return false
	}
	if f.State != "" && it.State() != f.State {
		return false
	}
	return true
}

// RefundMode selects how displaced bidders get their escrow back.
type RefundMode string

const (
	// RefundPush refunds the displaced bidder inside PlaceBid; a failed refund rejects the new bid.
	RefundPush RefundMode = "push"
	// RefundPull credits the displaced bidder and lets them Withdraw later.
	RefundPull RefundMode = "pull"
)
