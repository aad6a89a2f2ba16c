package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// latestAuctionEnd is the last instant representable in Unix nanoseconds,
// the form windows take in snapshots and event hashes.
var latestAuctionEnd = time.Unix(0, math.MaxInt64).UTC()

// StartAuction opens a timed auction on an item. A listing is withdrawn first,
// so the item moves Listed -> Auctioning and never holds both flags.
func (l *Ledger) StartAuction(ctx context.Context, caller Address, id ItemID, startingPrice decimal.Decimal, duration time.Duration) error {
	_, leave, err := l.enter(ctx, caller)
	if err != nil {
		return err
	}
	defer leave()

	it, err := l.load(id)
	if err != nil {
		return err
	}
	if it.Owner != caller {
		return ErrNotOwner
	}
	if it.InAuction {
		return ErrAuctionActive
	}
	if !ValidAmount(startingPrice) {
		return fmt.Errorf("starting price %s: %w", startingPrice, ErrInvalidAmount)
	}
	if duration < 0 {
		return fmt.Errorf("duration %s: %w", duration, ErrInvalidDuration)
	}

	now := l.now()
	if now.Add(duration).After(latestAuctionEnd) {
		return fmt.Errorf("duration %s ends after %s: %w", duration, latestAuctionEnd.Format(time.RFC3339), ErrInvalidDuration)
	}
	it.ForSale = false
	it.InAuction = true
	it.AuctionStart = now
	it.AuctionEnd = now.Add(duration)
	it.HighestBid = startingPrice
	it.HighestBidder = ""

	l.commit(&it, Event{
		Kind:      EventAuctionStarted,
		ItemID:    id,
		Actor:     caller,
		Amount:    startingPrice,
		Timestamp: now,
	})
	return nil
}

// PlaceBid escrows amount as the new leading bid and returns the previous
// leader's escrow. In push mode the refund happens in the same bank call and
// a refund failure rejects the bid; in pull mode it is credited for Withdraw.
func (l *Ledger) PlaceBid(ctx context.Context, caller Address, id ItemID, amount decimal.Decimal) error {
	callCtx, leave, err := l.enter(ctx, caller)
	if err != nil {
		return err
	}
	defer leave()

	it, err := l.load(id)
	if err != nil {
		return err
	}
	if !it.InAuction {
		return ErrNoAuctionActive
	}
	now := l.now()
	if it.AuctionEnded(now) {
		return ErrAuctionEnded
	}
	if !ValidAmount(amount) {
		return fmt.Errorf("bid %s: %w", amount, ErrInvalidAmount)
	}
	if amount.LessThanOrEqual(it.HighestBid) {
		return fmt.Errorf("bid %s against %s: %w", amount, it.HighestBid, ErrBidTooLow)
	}

	displaced := it.HighestBidder
	refund := it.HighestBid
	hasRefund := !displaced.IsZero() && refund.IsPositive()

	transfers := []Transfer{{From: caller, To: l.escrow, Amount: amount}}
	if hasRefund && l.refundMode == RefundPush {
		transfers = append(transfers, Transfer{From: l.escrow, To: displaced, Amount: refund})
	}
	if err := l.pay(callCtx, transfers); err != nil {
		return err
	}

	it.HighestBid = amount
	it.HighestBidder = caller

	events := []Event{{
		Kind:         EventBidPlaced,
		ItemID:       id,
		Actor:        caller,
		Counterparty: displaced,
		Amount:       amount,
		Timestamp:    now,
	}}

	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	l.items.put(it)
	if hasRefund && l.refundMode == RefundPull {
		l.pending[displaced] = l.pending[displaced].Add(refund)
		events = append(events, Event{
			Kind:         EventRefundOwed,
			ItemID:       id,
			Actor:        caller,
			Counterparty: displaced,
			Amount:       refund,
			Timestamp:    now,
		})
	}
	l.record(events)
	return nil
}

// EndAuction settles an elapsed auction. Anyone may call it.
// With a winner, the highest bid is split between creator and seller out of
// escrow and ownership moves to the winner. Without bids the item just leaves
// the auction and nil is returned.
func (l *Ledger) EndAuction(ctx context.Context, caller Address, id ItemID) (*Settlement, error) {
	callCtx, leave, err := l.enter(ctx, caller)
	if err != nil {
		return nil, err
	}
	defer leave()

	it, err := l.load(id)
	if err != nil {
		return nil, err
	}
	if !it.InAuction {
		return nil, ErrNoAuctionActive
	}
	now := l.now()
	if !it.AuctionEnded(now) {
		return nil, ErrAuctionStillRunning
	}

	seller := it.Owner
	winner := it.HighestBidder
	price := it.HighestBid

	it.InAuction = false
	it.ForSale = false

	if winner.IsZero() {
		l.commit(&it, Event{
			Kind:      EventAuctionEnded,
			ItemID:    id,
			Actor:     caller,
			Timestamp: now,
		})
		return nil, nil
	}

	royalty, proceeds := SplitPayment(price, it.RoyaltyPercentage)
	if err := l.pay(callCtx, settlementTransfers(l.escrow, it.Creator, seller, royalty, proceeds)); err != nil {
		return nil, err
	}

	it.Owner = winner
	events := l.commit(&it, Event{
		Kind:         EventAuctionEnded,
		ItemID:       id,
		Actor:        caller,
		Counterparty: winner,
		Amount:       price,
		Royalty:      royalty,
		Timestamp:    now,
	})

	return &Settlement{
		ItemID:    id,
		Seller:    seller,
		Buyer:     winner,
		Creator:   it.Creator,
		Price:     price,
		Royalty:   royalty,
		Proceeds:  proceeds,
		EventSeq:  events[0].Seq,
		EventHash: events[0].Hash,
		SettledAt: now,
	}, nil
}

// Withdraw pays out every refund owed to caller in pull mode.
// On a failed transfer the balance stays owed.
func (l *Ledger) Withdraw(ctx context.Context, caller Address) (decimal.Decimal, error) {
	callCtx, leave, err := l.enter(ctx, caller)
	if err != nil {
		return decimal.Zero, err
	}
	defer leave()

	l.stateMu.RLock()
	owed := l.pending[caller]
	l.stateMu.RUnlock()

	if !owed.IsPositive() {
		return decimal.Zero, ErrNothingToWithdraw
	}
	if err := l.pay(callCtx, []Transfer{{From: l.escrow, To: caller, Amount: owed}}); err != nil {
		return decimal.Zero, err
	}

	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	delete(l.pending, caller)
	l.record([]Event{{
		Kind:      EventWithdrawn,
		Actor:     caller,
		Amount:    owed,
		Timestamp: l.now(),
	}})
	return owed, nil
}
