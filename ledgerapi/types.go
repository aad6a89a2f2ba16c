package ledgerapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
)

// Request types accepted by the ledger daemon over the socket protocol.
const (
	TypeMint         = "mint"
	TypeList         = "list"
	TypeCancelSale   = "cancel_sale"
	TypeBuy          = "buy"
	TypeTransfer     = "transfer"
	TypeStartAuction = "start_auction"
	TypePlaceBid     = "place_bid"
	TypeEndAuction   = "end_auction"
	TypeWithdraw     = "withdraw"
	TypeGetItem      = "get_item"
	TypeListItems    = "list_items"
	TypeItemCount    = "item_count"
	TypePending      = "pending_return"
	TypeBalance      = "balance"
	TypeEvents       = "events"
	TypePublicKey    = "public_key"
	TypePing         = "ping"
)

// LedgerRequest is a single call into the ledger. Amounts travel as decimal
// strings so integers beyond float64 precision survive the JSON hop.
type LedgerRequest struct {
	Type            string      `json:"type"`
	Caller          string      `json:"caller,omitempty"`
	ItemID          core.ItemID `json:"item_id"`
	MetadataRef     string      `json:"metadata_ref,omitempty"`
	Price           string      `json:"price,omitempty"`
	Royalty         int         `json:"royalty_percentage,omitempty"`
	Recipient       string      `json:"recipient,omitempty"`
	Amount          string      `json:"amount,omitempty"`
	DurationSeconds int64       `json:"duration_seconds,omitempty"`
	From            uint64      `json:"from,omitempty"`
	Limit           int         `json:"limit,omitempty"`
	Owner           string      `json:"owner,omitempty"`
	Creator         string      `json:"creator,omitempty"`
	State           string      `json:"state,omitempty"`
}

// LedgerResponse is returned for every LedgerRequest. Code carries the stable
// error code from core.ErrorCode when Success is false.
type LedgerResponse struct {
	Type           string            `json:"type"`
	Success        bool              `json:"success"`
	Message        string            `json:"message,omitempty"`
	Code           string            `json:"code,omitempty"`
	ItemID         *core.ItemID      `json:"item_id,omitempty"`
	Item           *core.Item        `json:"item,omitempty"`
	Items          []core.Item       `json:"items,omitempty"`
	Count          *int              `json:"count,omitempty"`
	Amount         *decimal.Decimal  `json:"amount,omitempty"`
	Settlement     *core.Settlement  `json:"settlement,omitempty"`
	Receipt        ReceiptCOSEBase64 `json:"receipt,omitempty"`
	Events         []core.Event      `json:"events,omitempty"`
	HeadHash       string            `json:"head_hash,omitempty"`
	PublicKey      string            `json:"public_key,omitempty"`
	ProcessingTime int64             `json:"processing_time_ms"`
}

// Receipt is the signed record of a completed settlement. It is the CBOR
// payload of the COSE_Sign1 message handed back to buyers and sellers.
type Receipt struct {
	ID        string `cbor:"id" json:"id"`
	ItemID    uint64 `cbor:"item_id" json:"item_id"`
	Seller    string `cbor:"seller" json:"seller"`
	Buyer     string `cbor:"buyer" json:"buyer"`
	Creator   string `cbor:"creator" json:"creator"`
	Price     string `cbor:"price" json:"price"`
	Royalty   string `cbor:"royalty" json:"royalty"`
	Proceeds  string `cbor:"proceeds" json:"proceeds"`
	EventSeq  uint64 `cbor:"event_seq" json:"event_seq"`
	EventHash string `cbor:"event_hash" json:"event_hash"`
	Hash      string `cbor:"settlement_hash" json:"settlement_hash"`
	SettledAt int64  `cbor:"settled_at" json:"settled_at"`
}

// NewReceipt builds the receipt payload for a settlement.
func NewReceipt(id string, s core.Settlement) Receipt {
	return Receipt{
		ID:        id,
		ItemID:    uint64(s.ItemID),
		Seller:    s.Seller.String(),
		Buyer:     s.Buyer.String(),
		Creator:   s.Creator.String(),
		Price:     s.Price.String(),
		Royalty:   s.Royalty.String(),
		Proceeds:  s.Proceeds.String(),
		EventSeq:  s.EventSeq,
		EventHash: s.EventHash,
		Hash:      core.ComputeSettlementHash(s),
		SettledAt: s.SettledAt.UnixNano(),
	}
}

// Settlement converts the receipt back into a core settlement.
func (r Receipt) Settlement() (core.Settlement, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return core.Settlement{}, err
	}
	royalty, err := decimal.NewFromString(r.Royalty)
	if err != nil {
		return core.Settlement{}, err
	}
	proceeds, err := decimal.NewFromString(r.Proceeds)
	if err != nil {
		return core.Settlement{}, err
	}
	return core.Settlement{
		ItemID:    core.ItemID(r.ItemID),
		Seller:    core.Address(r.Seller),
		Buyer:     core.Address(r.Buyer),
		Creator:   core.Address(r.Creator),
		Price:     price,
		Royalty:   royalty,
		Proceeds:  proceeds,
		EventSeq:  r.EventSeq,
		EventHash: r.EventHash,
		SettledAt: time.Unix(0, r.SettledAt).UTC(),
	}, nil
}
