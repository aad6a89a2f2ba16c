package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind names a record emitted after a successful state change.
type EventKind string

const (
	EventMinted         EventKind = "minted"
	EventListed         EventKind = "listed"
	EventSaleCancelled  EventKind = "sale_cancelled"
	EventSold           EventKind = "sold"
	EventTransferred    EventKind = "transferred"
	EventAuctionStarted EventKind = "auction_started"
	EventBidPlaced      EventKind = "bid_placed"
	EventRefundOwed     EventKind = "refund_owed"
	EventAuctionEnded   EventKind = "auction_ended"
	EventWithdrawn      EventKind = "withdrawn"
)

// Event is an emitted record. The ledger keeps only the leading bid, so
// observers rebuild bid history from these.
//
// Actor is the caller. Counterparty depends on the kind: the seller for
// sold, the recipient for transferred, the displaced bidder for bid_placed,
// the winner for auction_ended.
type Event struct {
	Seq          uint64          `json:"seq"`
	ID           string          `json:"id"`
	Kind         EventKind       `json:"kind"`
	ItemID       ItemID          `json:"item_id"`
	Actor        Address         `json:"actor"`
	Counterparty Address         `json:"counterparty,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Royalty      decimal.Decimal `json:"royalty"`
	MetadataRef  string          `json:"metadata_ref,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	PrevHash     string          `json:"prev_hash"`
	Hash         string          `json:"hash"`
}

// EventSink receives events after the call that produced them has committed.
// Emit must not block and must not call back into the ledger.
type EventSink interface {
	Emit(Event)
}

// journal is the in-memory, hash-chained event log.
type journal struct {
	events    []Event
	base      uint64 // seq of events[0]
	next      uint64
	head      string
	retention int
}

func (j *journal) append(ev Event) Event {
	ev.Seq = j.next
	ev.ID = uuid.NewString()
	ev.PrevHash = j.head
	ev.Hash = ComputeEventHash(ev)

	j.events = append(j.events, ev)
	j.next++
	j.head = ev.Hash

	if j.retention > 0 && len(j.events) > j.retention {
		drop := len(j.events) - j.retention
		j.events = append([]Event(nil), j.events[drop:]...)
		j.base += uint64(drop)
	}
	return ev
}

func (j *journal) since(from uint64, limit int) []Event {
	if from < j.base {
		from = j.base
	}
	if from >= j.next {
		return []Event{}
	}
	window := j.events[from-j.base:]
	if limit > 0 && len(window) > limit {
		window = window[:limit]
	}
	out := make([]Event, len(window))
	copy(out, window)
	return out
}
