package core

import (
	"github.com/shopspring/decimal"
)

// MaxRoyaltyPercentage is the highest royalty a creator may set at mint.
const MaxRoyaltyPercentage = 50

var hundred = decimal.NewFromInt(100)

// ValidAmount reports whether d is a non-negative whole number of currency units.
func ValidAmount(d decimal.Decimal) bool {
	return !d.IsNegative() && d.IsInteger()
}

// ValidRoyalty reports whether pct is an allowed royalty percentage.
func ValidRoyalty(pct int) bool {
	return pct >= 0 && pct <= MaxRoyaltyPercentage
}

// SplitPayment divides a payment between the creator and the seller.
//
// royalty = floor(amount * pct / 100); proceeds = amount - royalty.
// QuoRem keeps the quotient exact for amounts of any size, so royalty+proceeds
// always equals amount.
func SplitPayment(amount decimal.Decimal, royaltyPercentage int) (royalty, proceeds decimal.Decimal) {
	royalty, _ = amount.Mul(decimal.NewFromInt(int64(royaltyPercentage))).QuoRem(hundred, 0)
	proceeds = amount.Sub(royalty)
	return royalty, proceeds
}

// settlementTransfers builds the bank legs for paying out a settled price held by from.
// Zero legs are dropped.
func settlementTransfers(from, creator, seller Address, royalty, proceeds decimal.Decimal) []Transfer {
	transfers := make([]Transfer, 0, 2)
	if royalty.IsPositive() {
		transfers = append(transfers, Transfer{From: from, To: creator, Amount: royalty})
	}
	if proceeds.IsPositive() {
		transfers = append(transfers, Transfer{From: from, To: seller, Amount: proceeds})
	}
	return transfers
}
