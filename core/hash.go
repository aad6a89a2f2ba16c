package core

import (
	"crypto/sha256"
	"fmt"
)

// ComputeEventHash computes the chained hash of an event.
// This is used by the ledger (to extend the chain) and validation (to verify an exported chain).
//
// Formula: SHA256(prev_hash + "|" + seq + "|" + kind + "|" + item_id + "|" + actor + "|" +
// counterparty + "|" + amount + "|" + royalty + "|" + unix_nanos + "|" + metadata_ref)
//
// Amounts are written with decimal.String, which never uses exponent notation,
// so equal amounts always hash the same.
func ComputeEventHash(ev Event) string {
	data := fmt.Sprintf("%s|%d|%s|%d|%s|%s|%s|%s|%d|%s",
		ev.PrevHash,
		ev.Seq,
		ev.Kind,
		ev.ItemID,
		ev.Actor,
		ev.Counterparty,
		ev.Amount.String(),
		ev.Royalty.String(),
		ev.Timestamp.UnixNano(),
		ev.MetadataRef,
	)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeSettlementHash binds a settlement to the event that recorded it.
//
// Formula: SHA256(event_hash + "|" + item_id + "|" + seller + "|" + buyer + "|" + price + "|" + royalty)
func ComputeSettlementHash(s Settlement) string {
	data := fmt.Sprintf("%s|%d|%s|%s|%s|%s",
		s.EventHash,
		s.ItemID,
		s.Seller,
		s.Buyer,
		s.Price.String(),
		s.Royalty.String(),
	)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
