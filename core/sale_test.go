package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
)

func TestMint_AssignsSequentialIDs(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()

	for want := 0; want < 3; want++ {
		id, err := f.ledger.Mint(ctx, alice, fmt.Sprintf("ipfs://item-%d", want), dec(5), 10)
		assert.NoError(t, err)
		check.Equal(t, core.ItemID(want), id)
	}
	check.Equal(t, 3, f.ledger.ItemCount())

	it := f.item(t, 1)
	check.Equal(t, alice, it.Creator)
	check.Equal(t, alice, it.Owner)
	check.Equal(t, "ipfs://item-1", it.MetadataRef)
	check.Equal(t, "5", it.Price.String())
	check.Equal(t, 10, it.RoyaltyPercentage)
	check.False(t, it.ForSale)
	check.False(t, it.InAuction)
	check.True(t, it.Minted)
	check.True(t, it.HighestBidder.IsZero())
	check.Equal(t, core.StateIdle, it.State())

	ref, err := f.ledger.MetadataRef(1)
	check.NoError(t, err)
	check.Equal(t, "ipfs://item-1", ref)
}

func TestMint_RoyaltyBounds(t *testing.T) {
	tests := []struct {
		royalty int
		wantErr error
	}{
		{royalty: 0},
		{royalty: 50},
		{royalty: 51, wantErr: core.ErrInvalidRoyalty},
		{royalty: -1, wantErr: core.ErrInvalidRoyalty},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("royalty_%d", tt.royalty), func(t *testing.T) {
			f := newFixture(t, core.RefundPush)
			_, err := f.ledger.Mint(context.Background(), alice, "ipfs://x", dec(1), tt.royalty)
			if tt.wantErr == nil {
				check.NoError(t, err)
				check.Equal(t, 1, f.ledger.ItemCount())
				return
			}
			check.True(t, errors.Is(err, tt.wantErr))
			check.Equal(t, 0, f.ledger.ItemCount())
			check.Equal(t, 0, len(f.sink.events))
		})
	}
}

func TestMint_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()

	_, err := f.ledger.Mint(ctx, "", "ipfs://x", dec(1), 5)
	check.True(t, errors.Is(err, core.ErrZeroAddress))

	_, err = f.ledger.Mint(ctx, alice, "ipfs://x", dec(-1), 5)
	check.True(t, errors.Is(err, core.ErrInvalidAmount))

	_, err = f.ledger.Mint(ctx, alice, "ipfs://x", decimal.RequireFromString("1.5"), 5)
	check.True(t, errors.Is(err, core.ErrInvalidAmount))

	check.Equal(t, 0, f.ledger.ItemCount())
}

func TestItem_UnknownID(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	_, err := f.ledger.Item(7)
	check.True(t, errors.Is(err, core.ErrItemNotFound))

	err = f.ledger.List(context.Background(), alice, 7, dec(1))
	check.True(t, errors.Is(err, core.ErrItemNotFound))
}

func TestList(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()
	id := f.mint(t, alice, 10)

	err := f.ledger.List(ctx, bob, id, dec(100))
	check.True(t, errors.Is(err, core.ErrNotOwner))

	assert.NoError(t, f.ledger.List(ctx, alice, id, dec(100)))
	it := f.item(t, id)
	check.True(t, it.ForSale)
	check.Equal(t, "100", it.Price.String())
	check.Equal(t, core.StateListed, it.State())

	err = f.ledger.List(ctx, alice, id, dec(200))
	check.True(t, errors.Is(err, core.ErrAlreadyListed))
	check.Equal(t, "100", f.item(t, id).Price.String())
}

func TestCancelSale_SecondCallFails(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()
	id := f.mint(t, alice, 10)
	assert.NoError(t, f.ledger.List(ctx, alice, id, dec(100)))

	err := f.ledger.CancelSale(ctx, bob, id)
	check.True(t, errors.Is(err, core.ErrNotOwner))

	assert.NoError(t, f.ledger.CancelSale(ctx, alice, id))
	after := f.item(t, id)

	err = f.ledger.CancelSale(ctx, alice, id)
	check.True(t, errors.Is(err, core.ErrNotForSale))
	again := f.item(t, id)
	check.Equal(t, after.State(), again.State())
	check.Equal(t, after.Owner, again.Owner)
	check.Equal(t, after.Price.String(), again.Price.String())
}

func TestListCancel_RoundTrip(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()
	id := f.mint(t, alice, 10)
	before := f.item(t, id)

	assert.NoError(t, f.ledger.List(ctx, alice, id, dec(250)))
	assert.NoError(t, f.ledger.CancelSale(ctx, alice, id))
	after := f.item(t, id)

	check.False(t, after.ForSale)
	check.Equal(t, before.Owner, after.Owner)
	check.Equal(t, before.Creator, after.Creator)
	check.Equal(t, before.RoyaltyPercentage, after.RoyaltyPercentage)
	check.Equal(t, before.InAuction, after.InAuction)
	check.Equal(t, before.MetadataRef, after.MetadataRef)
	check.Equal(t, "250", after.Price.String())
}

func TestBuy_ScenarioA(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()

	id := f.mint(t, alice, 10)
	check.Equal(t, core.ItemID(0), id)
	assert.NoError(t, f.ledger.Transfer(ctx, alice, id, bob))
	assert.NoError(t, f.ledger.List(ctx, bob, id, dec(100)))

	settlement, err := f.ledger.Buy(ctx, carol, id, dec(100))
	assert.NoError(t, err)

	check.Equal(t, "10", settlement.Royalty.String())
	check.Equal(t, "90", settlement.Proceeds.String())
	check.Equal(t, bob, settlement.Seller)
	check.Equal(t, carol, settlement.Buyer)
	check.Equal(t, alice, settlement.Creator)

	check.Equal(t, "1010", f.balance(alice))
	check.Equal(t, "1090", f.balance(bob))
	check.Equal(t, "900", f.balance(carol))
	check.Equal(t, "0", f.balance(f.ledger.Escrow()))

	it := f.item(t, id)
	check.Equal(t, carol, it.Owner)
	check.Equal(t, alice, it.Creator)
	check.False(t, it.ForSale)
}

func TestBuy_ScenarioE_ZeroRoyalty(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()

	id := f.mint(t, alice, 0)
	assert.NoError(t, f.ledger.Transfer(ctx, alice, id, bob))
	assert.NoError(t, f.ledger.List(ctx, bob, id, dec(100)))

	settlement, err := f.ledger.Buy(ctx, carol, id, dec(100))
	assert.NoError(t, err)

	check.Equal(t, "0", settlement.Royalty.String())
	check.Equal(t, "100", settlement.Proceeds.String())
	check.Equal(t, "1000", f.balance(alice))
	check.Equal(t, "1100", f.balance(bob))
}

func TestBuy_CreatorSellsOwnItem(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()

	id := f.mint(t, alice, 25)
	assert.NoError(t, f.ledger.List(ctx, alice, id, dec(40)))

	_, err := f.ledger.Buy(ctx, bob, id, dec(40))
	assert.NoError(t, err)

	check.Equal(t, "1040", f.balance(alice))
	check.Equal(t, "960", f.balance(bob))
}

func TestBuy_Overpayment(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()

	id := f.mint(t, alice, 10)
	assert.NoError(t, f.ledger.Transfer(ctx, alice, id, bob))
	assert.NoError(t, f.ledger.List(ctx, bob, id, dec(100)))

	settlement, err := f.ledger.Buy(ctx, carol, id, dec(155))
	assert.NoError(t, err)

	// Royalty is taken from the whole payment, floored.
	check.Equal(t, "155", settlement.Price.String())
	check.Equal(t, "15", settlement.Royalty.String())
	check.Equal(t, "140", settlement.Proceeds.String())
}

func TestBuy_Failures(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()
	id := f.mint(t, alice, 10)

	_, err := f.ledger.Buy(ctx, bob, id, dec(100))
	check.True(t, errors.Is(err, core.ErrNotForSale))

	assert.NoError(t, f.ledger.List(ctx, alice, id, dec(100)))

	_, err = f.ledger.Buy(ctx, bob, id, dec(99))
	check.True(t, errors.Is(err, core.ErrInsufficientFunds))

	// bob cannot cover the payment: the bank rejects the first leg
	_, err = f.ledger.Buy(ctx, bob, id, dec(5000))
	check.True(t, errors.Is(err, core.ErrTransferFailed))

	it := f.item(t, id)
	check.Equal(t, alice, it.Owner)
	check.True(t, it.ForSale)
	check.Equal(t, "1000", f.balance(bob))
}

func TestBuy_RollsBackWhenSellerRejectsFunds(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()

	id := f.mint(t, alice, 10)
	assert.NoError(t, f.ledger.Transfer(ctx, alice, id, bob))
	assert.NoError(t, f.ledger.List(ctx, bob, id, dec(100)))

	f.bank.SetReceiver(bob, func(context.Context, core.Address, decimal.Decimal) error {
		return errors.New("not payable")
	})
	eventsBefore := f.ledger.EventCount()

	_, err := f.ledger.Buy(ctx, carol, id, dec(100))
	check.True(t, errors.Is(err, core.ErrTransferFailed))

	// No partial payment: the creator's royalty did not land either.
	check.Equal(t, "1000", f.balance(alice))
	check.Equal(t, "1000", f.balance(bob))
	check.Equal(t, "1000", f.balance(carol))

	it := f.item(t, id)
	check.Equal(t, bob, it.Owner)
	check.True(t, it.ForSale)
	check.Equal(t, eventsBefore, f.ledger.EventCount())
}

func TestBuy_ConservesValue(t *testing.T) {
	royalties := []int{0, 1, 7, 10, 33, 50}
	payments := []int64{1, 3, 99, 100, 101, 12345}

	for _, royalty := range royalties {
		for _, payment := range payments {
			t.Run(fmt.Sprintf("royalty_%d_payment_%d", royalty, payment), func(t *testing.T) {
				f := newFixture(t, core.RefundPush)
				ctx := context.Background()
				assert.NoError(t, f.bank.Deposit(dave, dec(payment)))
				totalBefore := f.bank.Total()

				id := f.mint(t, alice, royalty)
				assert.NoError(t, f.ledger.Transfer(ctx, alice, id, bob))
				assert.NoError(t, f.ledger.List(ctx, bob, id, dec(1)))

				s, err := f.ledger.Buy(ctx, dave, id, dec(payment))
				assert.NoError(t, err)

				want := dec(payment).Mul(dec(int64(royalty))).Div(dec(100)).Floor()
				check.Equal(t, want.String(), s.Royalty.String())
				check.Equal(t, s.Price.String(), s.Royalty.Add(s.Proceeds).String())
				check.Equal(t, totalBefore.String(), f.bank.Total().String())
				check.Equal(t, "0", f.balance(f.ledger.Escrow()))
			})
		}
	}
}

func TestTransfer(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()
	id := f.mint(t, alice, 10)
	assert.NoError(t, f.ledger.List(ctx, alice, id, dec(100)))

	err := f.ledger.Transfer(ctx, bob, id, carol)
	check.True(t, errors.Is(err, core.ErrNotOwner))

	err = f.ledger.Transfer(ctx, alice, id, "")
	check.True(t, errors.Is(err, core.ErrZeroAddress))

	assert.NoError(t, f.ledger.Transfer(ctx, alice, id, bob))
	it := f.item(t, id)
	check.Equal(t, bob, it.Owner)
	check.Equal(t, alice, it.Creator)
	check.False(t, it.ForSale)
	check.Equal(t, "1000", f.balance(alice))
	check.Equal(t, "1000", f.balance(bob))
}

func TestItems_Filters(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()

	a := f.mint(t, alice, 5)
	b := f.mint(t, alice, 5)
	c := f.mint(t, bob, 5)
	assert.NoError(t, f.ledger.List(ctx, alice, a, dec(10)))
	assert.NoError(t, f.ledger.StartAuction(ctx, bob, c, dec(1), 0))
	assert.NoError(t, f.ledger.Transfer(ctx, alice, b, carol))

	check.Equal(t, 3, len(f.ledger.Items(core.Filter{})))
	check.Equal(t, 1, len(f.ledger.Items(core.Filter{Owner: alice})))
	check.Equal(t, 2, len(f.ledger.Items(core.Filter{Creator: alice})))

	listed := f.ledger.Items(core.Filter{State: core.StateListed})
	check.Equal(t, 1, len(listed))
	check.Equal(t, a, listed[0].ID)

	auctions := f.ledger.Items(core.Filter{State: core.StateAuctioning})
	check.Equal(t, 1, len(auctions))
	check.Equal(t, c, auctions[0].ID)

	idle := f.ledger.Items(core.Filter{Owner: carol, State: core.StateIdle})
	check.Equal(t, 1, len(idle))
	check.Equal(t, b, idle[0].ID)
}

func TestReentrantCallRejected(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()

	id := f.mint(t, alice, 10)
	other := f.mint(t, carol, 0)
	assert.NoError(t, f.ledger.Transfer(ctx, alice, id, bob))
	assert.NoError(t, f.ledger.List(ctx, bob, id, dec(100)))
	assert.NoError(t, f.ledger.List(ctx, carol, other, dec(1)))

	var reentryErr error
	var observedOwner core.Address
	f.bank.SetReceiver(bob, func(ctx context.Context, _ core.Address, _ decimal.Decimal) error {
		// A different item than the one being settled is still off limits.
		_, reentryErr = f.ledger.Buy(ctx, bob, other, dec(1))
		it, err := f.ledger.Item(id)
		if err != nil {
			return err
		}
		observedOwner = it.Owner
		return nil
	})

	_, err := f.ledger.Buy(ctx, carol, id, dec(100))
	assert.NoError(t, err)

	check.True(t, errors.Is(reentryErr, core.ErrReentrantCall))
	check.Equal(t, bob, observedOwner)
	check.Equal(t, carol, f.item(t, id).Owner)
	check.Equal(t, carol, f.item(t, other).Owner)
	check.True(t, f.item(t, other).ForSale)
}

func TestReentrantCallWithFreshContextRejected(t *testing.T) {
	f := newFixture(t, core.RefundPush)
	ctx := context.Background()

	id := f.mint(t, alice, 10)
	assert.NoError(t, f.ledger.List(ctx, alice, id, dec(100)))

	var mintErr, snapErr error
	f.bank.SetReceiver(alice, func(context.Context, core.Address, decimal.Decimal) error {
		// Receiver code drops the context it was handed.
		_, mintErr = f.ledger.Mint(context.Background(), alice, "ipfs://sneaky", dec(0), 0)
		_, snapErr = f.ledger.Snapshot()
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.ledger.Buy(ctx, bob, id, dec(100))
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Buy did not return while its receiver called back into the ledger")
	}

	check.True(t, errors.Is(mintErr, core.ErrReentrantCall))
	check.True(t, errors.Is(snapErr, core.ErrReentrantCall))
	check.Equal(t, 1, f.ledger.ItemCount())
	check.Equal(t, bob, f.item(t, id).Owner)

	// The call slot was released, so the ledger keeps serving.
	f.bank.SetReceiver(alice, nil)
	f.mint(t, carol, 0)
	check.Equal(t, 2, f.ledger.ItemCount())
}

func TestConcurrentCallsSerialise(t *testing.T) {
	f := newFixture(t, core.RefundPush)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Mint(context.Background(), alice, "ipfs://m", dec(0), 5)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		check.NoError(t, err)
	}
	check.Equal(t, 16, f.ledger.ItemCount())
	check.Equal(t, uint64(16), f.ledger.EventCount())
}

func TestErrorCode(t *testing.T) {
	check.Equal(t, "", core.ErrorCode(nil))
	check.Equal(t, "NotOwner", core.ErrorCode(core.ErrNotOwner))
	check.Equal(t, "BidTooLow", core.ErrorCode(fmt.Errorf("bid 5: %w", core.ErrBidTooLow)))
	check.Equal(t, "TransferFailed", core.ErrorCode(fmt.Errorf("%w: boom", core.ErrTransferFailed)))
	check.Equal(t, "Internal", core.ErrorCode(errors.New("boom")))
}
