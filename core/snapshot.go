package core

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"
)

const snapshotVersion = 1

// itemRecord is the persisted form of an Item. Amounts are stored as decimal strings.
type itemRecord struct {
	Creator           string `cbor:"creator"`
	Owner             string `cbor:"owner"`
	MetadataRef       string `cbor:"metadata_ref"`
	Price             string `cbor:"price"`
	RoyaltyPercentage int    `cbor:"royalty"`
	ForSale           bool   `cbor:"for_sale"`
	InAuction         bool   `cbor:"in_auction"`
	AuctionStart      int64  `cbor:"auction_start"`
	AuctionEnd        int64  `cbor:"auction_end"`
	HighestBid        string `cbor:"highest_bid"`
	HighestBidder     string `cbor:"highest_bidder"`
}

type snapshot struct {
	Version   int               `cbor:"version"`
	Escrow    string            `cbor:"escrow"`
	Items     []itemRecord      `cbor:"items"`
	Pending   map[string]string `cbor:"pending"`
	NextEvent uint64            `cbor:"next_event"`
	HeadHash  string            `cbor:"head_hash"`
}

// Snapshot serialises the registry, owed refunds and event chain head as CBOR.
// The event journal itself is not included; observers archive events.
func (l *Ledger) Snapshot() ([]byte, error) {
	if err := l.acquire(context.Background()); err != nil {
		return nil, err
	}
	defer l.release()
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()

	snap := snapshot{
		Version:   snapshotVersion,
		Escrow:    string(l.escrow),
		Items:     make([]itemRecord, 0, l.items.count()),
		Pending:   make(map[string]string, len(l.pending)),
		NextEvent: l.journal.next,
		HeadHash:  l.journal.head,
	}
	for _, it := range l.items.items {
		snap.Items = append(snap.Items, itemRecord{
			Creator:           string(it.Creator),
			Owner:             string(it.Owner),
			MetadataRef:       it.MetadataRef,
			Price:             it.Price.String(),
			RoyaltyPercentage: it.RoyaltyPercentage,
			ForSale:           it.ForSale,
			InAuction:         it.InAuction,
			AuctionStart:      unixNanos(it.AuctionStart),
			AuctionEnd:        unixNanos(it.AuctionEnd),
			HighestBid:        it.HighestBid.String(),
			HighestBidder:     string(it.HighestBidder),
		})
	}
	for addr, owed := range l.pending {
		snap.Pending[string(addr)] = owed.String()
	}

	data, err := cbor.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces the ledger's state with a snapshot. It is meant for start-up,
// before the ledger serves calls.
func (l *Ledger) Restore(data []byte) error {
	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if Address(snap.Escrow) != l.escrow {
		return fmt.Errorf("snapshot escrow %q does not match ledger escrow %q", snap.Escrow, l.escrow)
	}

	items := make([]Item, 0, len(snap.Items))
	for i, rec := range snap.Items {
		price, err := decimal.NewFromString(rec.Price)
		if err != nil {
			return fmt.Errorf("item %d price: %w", i, err)
		}
		highest, err := decimal.NewFromString(rec.HighestBid)
		if err != nil {
			return fmt.Errorf("item %d highest bid: %w", i, err)
		}
		if !ValidAmount(price) || !ValidAmount(highest) {
			return fmt.Errorf("item %d amounts must be whole non-negative units", i)
		}
		if !ValidRoyalty(rec.RoyaltyPercentage) {
			return fmt.Errorf("item %d royalty %d: %w", i, rec.RoyaltyPercentage, ErrInvalidRoyalty)
		}
		if rec.ForSale && rec.InAuction {
			return fmt.Errorf("item %d is both listed and in auction", i)
		}
		if rec.InAuction && rec.AuctionEnd == 0 {
			return fmt.Errorf("item %d is in auction without an end time", i)
		}
		items = append(items, Item{
			ID:                ItemID(i),
			Creator:           Address(rec.Creator),
			Owner:             Address(rec.Owner),
			MetadataRef:       rec.MetadataRef,
			Price:             price,
			RoyaltyPercentage: rec.RoyaltyPercentage,
			ForSale:           rec.ForSale,
			InAuction:         rec.InAuction,
			AuctionStart:      fromUnixNanos(rec.AuctionStart),
			AuctionEnd:        fromUnixNanos(rec.AuctionEnd),
			HighestBid:        highest,
			HighestBidder:     Address(rec.HighestBidder),
			Minted:            true,
		})
	}

	pending := make(map[Address]decimal.Decimal, len(snap.Pending))
	for addr, s := range snap.Pending {
		owed, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("pending return for %s: %w", addr, err)
		}
		if !ValidAmount(owed) {
			return fmt.Errorf("pending return for %s is %s: %w", addr, owed, ErrInvalidAmount)
		}
		pending[Address(addr)] = owed
	}

	if err := l.acquire(context.Background()); err != nil {
		return err
	}
	defer l.release()
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	l.items = registry{items: items}
	l.pending = pending
	l.journal = journal{
		base:      snap.NextEvent,
		next:      snap.NextEvent,
		head:      snap.HeadHash,
		retention: l.journal.retention,
	}
	return nil
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
