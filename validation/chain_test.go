package validation

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/bank"
	"github.com/cloudx-io/openmarket/core"
)

func exportedHistory(t *testing.T) []core.Event {
	t.Helper()
	ctx := context.Background()

	b := bank.NewMemory()
	assert.NoError(t, b.Deposit("0xbuyer", decimal.NewFromInt(1000)))
	l, err := core.New(core.Config{}, b, nil, nil)
	assert.NoError(t, err)

	id, err := l.Mint(ctx, "0xcreator", "ipfs://a", decimal.NewFromInt(100), 10)
	assert.NoError(t, err)
	assert.NoError(t, l.List(ctx, "0xcreator", id, decimal.NewFromInt(100)))
	_, err = l.Buy(ctx, "0xbuyer", id, decimal.NewFromInt(100))
	assert.NoError(t, err)
	assert.NoError(t, l.StartAuction(ctx, "0xbuyer", id, decimal.NewFromInt(1), time.Hour))

	return l.Events(0, 0)
}

func TestVerifyEventChain_Intact(t *testing.T) {
	events := exportedHistory(t)
	result := VerifyEventChain(events, "")
	check.True(t, result.IsValid())
	check.Equal(t, len(events), result.EventsChecked)
	check.Equal(t, events[len(events)-1].Hash, result.HeadHash)

	// A suffix verifies against the hash of the event before it.
	tail := VerifyEventChain(events[2:], events[1].Hash)
	check.True(t, tail.IsValid())
	check.Equal(t, uint64(2), tail.FirstSeq)

	empty := VerifyEventChain(nil, "")
	check.True(t, empty.IsValid())
}

func TestVerifyEventChain_DetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]core.Event) []core.Event
		anchor string
		broken uint64
	}{
		{
			name: "amount rewritten",
			mutate: func(evs []core.Event) []core.Event {
				evs[2].Amount = decimal.NewFromInt(1)
				return evs
			},
			broken: 2,
		},
		{
			name: "event dropped",
			mutate: func(evs []core.Event) []core.Event {
				return append(evs[:1], evs[2:]...)
			},
			broken: 2,
		},
		{
			name: "wrong anchor",
			mutate: func(evs []core.Event) []core.Event {
				return evs[1:]
			},
			anchor: "feed",
			broken: 1,
		},
		{
			name: "forged genesis link",
			mutate: func(evs []core.Event) []core.Event {
				evs[0].PrevHash = "feed"
				return evs
			},
			broken: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := VerifyEventChain(tt.mutate(exportedHistory(t)), tt.anchor)
			check.False(t, result.IsValid())
			assert.NotNil(t, result.BrokenAt)
			check.Equal(t, tt.broken, *result.BrokenAt)
		})
	}
}
