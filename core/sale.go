package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Mint creates a new item owned and created by caller. No funds move.
func (l *Ledger) Mint(ctx context.Context, caller Address, metadataRef string, price decimal.Decimal, royaltyPercentage int) (ItemID, error) {
	_, leave, err := l.enter(ctx, caller)
	if err != nil {
		return 0, err
	}
	defer leave()

	if !ValidRoyalty(royaltyPercentage) {
		return 0, fmt.Errorf("royalty %d: %w", royaltyPercentage, ErrInvalidRoyalty)
	}
	if !ValidAmount(price) {
		return 0, fmt.Errorf("price %s: %w", price, ErrInvalidAmount)
	}

	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	id := l.items.allocate(Item{
		Creator:           caller,
		Owner:             caller,
		MetadataRef:       metadataRef,
		Price:             price,
		RoyaltyPercentage: royaltyPercentage,
	})
	l.record([]Event{{
		Kind:        EventMinted,
		ItemID:      id,
		Actor:       caller,
		Amount:      price,
		MetadataRef: metadataRef,
		Timestamp:   l.now(),
	}})
	return id, nil
}

// List offers an item for immediate sale at price.
func (l *Ledger) List(ctx context.Context, caller Address, id ItemID, price decimal.Decimal) error {
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
	if it.ForSale {
		return ErrAlreadyListed
	}
	if it.InAuction {
		return ErrAuctionActive
	}
	if !ValidAmount(price) {
		return fmt.Errorf("price %s: %w", price, ErrInvalidAmount)
	}

	it.Price = price
	it.ForSale = true
	l.commit(&it, Event{
		Kind:      EventListed,
		ItemID:    id,
		Actor:     caller,
		Amount:    price,
		Timestamp: l.now(),
	})
	return nil
}

// CancelSale withdraws a listing. No funds move.
func (l *Ledger) CancelSale(ctx context.Context, caller Address, id ItemID) error {
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
	if !it.ForSale {
		return ErrNotForSale
	}

	it.ForSale = false
	l.commit(&it, Event{
		Kind:      EventSaleCancelled,
		ItemID:    id,
		Actor:     caller,
		Timestamp: l.now(),
	})
	return nil
}

// Buy purchases a listed item with payment, which may exceed the price.
// The royalty share of payment goes to the creator and the rest to the seller.
// If any transfer fails nothing changes: the buyer keeps the payment and the
// seller keeps the item and its listing.
func (l *Ledger) Buy(ctx context.Context, caller Address, id ItemID, payment decimal.Decimal) (Settlement, error) {
	callCtx, leave, err := l.enter(ctx, caller)
	if err != nil {
		return Settlement{}, err
	}
	defer leave()

	it, err := l.load(id)
	if err != nil {
		return Settlement{}, err
	}
	if !it.ForSale {
		return Settlement{}, ErrNotForSale
	}
	if !ValidAmount(payment) {
		return Settlement{}, fmt.Errorf("payment %s: %w", payment, ErrInvalidAmount)
	}
	if payment.LessThan(it.Price) {
		return Settlement{}, fmt.Errorf("payment %s below price %s: %w", payment, it.Price, ErrInsufficientFunds)
	}

	seller := it.Owner
	royalty, proceeds := SplitPayment(payment, it.RoyaltyPercentage)

	transfers := make([]Transfer, 0, 3)
	if payment.IsPositive() {
		transfers = append(transfers, Transfer{From: caller, To: l.escrow, Amount: payment})
	}
	transfers = append(transfers, settlementTransfers(l.escrow, it.Creator, seller, royalty, proceeds)...)
	if err := l.pay(callCtx, transfers); err != nil {
		return Settlement{}, err
	}

	it.Owner = caller
	it.ForSale = false
	now := l.now()
	events := l.commit(&it, Event{
		Kind:         EventSold,
		ItemID:       id,
		Actor:        caller,
		Counterparty: seller,
		Amount:       payment,
		Royalty:      royalty,
		Timestamp:    now,
	})

	return Settlement{
		ItemID:    id,
		Seller:    seller,
		Buyer:     caller,
		Creator:   it.Creator,
		Price:     payment,
		Royalty:   royalty,
		Proceeds:  proceeds,
		EventSeq:  events[0].Seq,
		EventHash: events[0].Hash,
		SettledAt: now,
	}, nil
}

// Transfer gives an item away. No funds and no royalty move; a listing is cleared.
func (l *Ledger) Transfer(ctx context.Context, caller Address, id ItemID, recipient Address) error {
	_, leave, err := l.enter(ctx, caller)
	if err != nil {
		return err
	}
	defer leave()

	if recipient.IsZero() {
		return fmt.Errorf("recipient: %w", ErrZeroAddress)
	}

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

	it.Owner = recipient
	it.ForSale = false
	l.commit(&it, Event{
		Kind:         EventTransferred,
		ItemID:       id,
		Actor:        caller,
		Counterparty: recipient,
		Timestamp:    l.now(),
	})
	return nil
}
