package core

import (
	"context"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

type nopBank struct{}

func (nopBank) Execute(context.Context, []Transfer) error { return nil }

func validRecord() itemRecord {
	return itemRecord{
		Creator:           "0xa",
		Owner:             "0xa",
		Price:             "0",
		RoyaltyPercentage: 10,
		HighestBid:        "0",
	}
}

func TestRestore_RejectsBrokenInvariants(t *testing.T) {
	end := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC).UnixNano()

	tests := []struct {
		name    string
		mutate  func(*snapshot)
		wantErr bool
	}{
		{"valid", func(*snapshot) {}, false},
		{"valid auction", func(s *snapshot) {
			s.Items[0].InAuction = true
			s.Items[0].AuctionEnd = end
		}, false},
		{"royalty above cap", func(s *snapshot) { s.Items[0].RoyaltyPercentage = MaxRoyaltyPercentage + 1 }, true},
		{"negative royalty", func(s *snapshot) { s.Items[0].RoyaltyPercentage = -1 }, true},
		{"fractional price", func(s *snapshot) { s.Items[0].Price = "1.5" }, true},
		{"negative highest bid", func(s *snapshot) { s.Items[0].HighestBid = "-3" }, true},
		{"listed and auctioning", func(s *snapshot) {
			s.Items[0].ForSale = true
			s.Items[0].InAuction = true
			s.Items[0].AuctionEnd = end
		}, true},
		{"auction without end", func(s *snapshot) { s.Items[0].InAuction = true }, true},
		{"negative pending refund", func(s *snapshot) { s.Pending["0xb"] = "-5" }, true},
		{"fractional pending refund", func(s *snapshot) { s.Pending["0xb"] = "0.5" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshot{
				Version: snapshotVersion,
				Escrow:  string(DefaultEscrow),
				Items:   []itemRecord{validRecord()},
				Pending: map[string]string{"0xb": "5"},
			}
			tt.mutate(&snap)
			data, err := cbor.Marshal(snap)
			assert.NoError(t, err)

			l, err := New(Config{}, nopBank{}, nil, nil)
			assert.NoError(t, err)
			err = l.Restore(data)
			if tt.wantErr {
				check.Error(t, err)
				check.Equal(t, 0, l.ItemCount())
				return
			}
			check.NoError(t, err)
			check.Equal(t, 1, l.ItemCount())
		})
	}
}
