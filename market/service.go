package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/ledgerapi"
	"github.com/cloudx-io/openmarket/receipts"
)

var (
	ErrUnknownRequest = errors.New("unknown request type")
	ErrBadRequest     = errors.New("malformed request")
)

// Balances exposes account balances of the value-transfer backend.
type Balances interface {
	Balance(core.Address) decimal.Decimal
}

// Service translates wire requests into ledger calls. It is shared by the
// socket server and the HTTP gateway.
type Service struct {
	ledger   *core.Ledger
	signer   *receipts.Signer
	balances Balances
}

// NewService wires the ledger with an optional receipt signer and balance source.
func NewService(ledger *core.Ledger, signer *receipts.Signer, balances Balances) *Service {
	return &Service{ledger: ledger, signer: signer, balances: balances}
}

func (s *Service) Ledger() *core.Ledger { return s.ledger }

// Process runs one request to completion. Failures are reported in the
// response, never as a Go error.
func (s *Service) Process(ctx context.Context, req ledgerapi.LedgerRequest) ledgerapi.LedgerResponse {
	start := time.Now()
	resp := ledgerapi.LedgerResponse{Type: req.Type}

	err := s.dispatch(ctx, req, &resp)
	resp.ProcessingTime = time.Since(start).Milliseconds()

	if err != nil {
		resp.Success = false
		resp.Message = err.Error()
		resp.Code = errorCode(err)
		if mutating(req.Type) {
			log.Printf("ERROR: %s on item %d by %s failed (%s): %v", req.Type, req.ItemID, req.Caller, resp.Code, err)
		}
		return resp
	}

	resp.Success = true
	if mutating(req.Type) {
		log.Printf("INFO: %s on item %d by %s processed in %dms", req.Type, req.ItemID, req.Caller, resp.ProcessingTime)
	}
	return resp
}

func (s *Service) dispatch(ctx context.Context, req ledgerapi.LedgerRequest, resp *ledgerapi.LedgerResponse) error {
	caller := core.NewAddress(req.Caller)

	switch req.Type {
	case ledgerapi.TypePing:
		resp.Message = "ledger is healthy"
		return nil

	case ledgerapi.TypeMint:
		price, err := parseAmount("price", req.Price, true)
		if err != nil {
			return err
		}
		id, err := s.ledger.Mint(ctx, caller, req.MetadataRef, price, req.Royalty)
		if err != nil {
			return err
		}
		resp.ItemID = &id
		return s.fillItem(id, resp)

	case ledgerapi.TypeList:
		price, err := parseAmount("price", req.Price, false)
		if err != nil {
			return err
		}
		if err := s.ledger.List(ctx, caller, req.ItemID, price); err != nil {
			return err
		}
		return s.fillItem(req.ItemID, resp)

	case ledgerapi.TypeCancelSale:
		if err := s.ledger.CancelSale(ctx, caller, req.ItemID); err != nil {
			return err
		}
		return s.fillItem(req.ItemID, resp)

	case ledgerapi.TypeBuy:
		payment, err := parseAmount("amount", req.Amount, false)
		if err != nil {
			return err
		}
		settlement, err := s.ledger.Buy(ctx, caller, req.ItemID, payment)
		if err != nil {
			return err
		}
		s.settle(&settlement, resp)
		return s.fillItem(req.ItemID, resp)

	case ledgerapi.TypeTransfer:
		if err := s.ledger.Transfer(ctx, caller, req.ItemID, core.NewAddress(req.Recipient)); err != nil {
			return err
		}
		return s.fillItem(req.ItemID, resp)

	case ledgerapi.TypeStartAuction:
		startingPrice, err := parseAmount("price", req.Price, true)
		if err != nil {
			return err
		}
		if req.DurationSeconds > maxDurationSeconds {
			return fmt.Errorf("duration of %d seconds: %w", req.DurationSeconds, core.ErrInvalidDuration)
		}
		duration := time.Duration(req.DurationSeconds) * time.Second
		if err := s.ledger.StartAuction(ctx, caller, req.ItemID, startingPrice, duration); err != nil {
			return err
		}
		return s.fillItem(req.ItemID, resp)

	case ledgerapi.TypePlaceBid:
		amount, err := parseAmount("amount", req.Amount, false)
		if err != nil {
			return err
		}
		if err := s.ledger.PlaceBid(ctx, caller, req.ItemID, amount); err != nil {
			return err
		}
		return s.fillItem(req.ItemID, resp)

	case ledgerapi.TypeEndAuction:
		settlement, err := s.ledger.EndAuction(ctx, caller, req.ItemID)
		if err != nil {
			return err
		}
		if settlement != nil {
			s.settle(settlement, resp)
		} else {
			resp.Message = "auction ended without bids"
		}
		return s.fillItem(req.ItemID, resp)

	case ledgerapi.TypeWithdraw:
		amount, err := s.ledger.Withdraw(ctx, caller)
		if err != nil {
			return err
		}
		resp.Amount = &amount
		return nil

	case ledgerapi.TypeGetItem:
		return s.fillItem(req.ItemID, resp)

	case ledgerapi.TypeListItems:
		filter, err := parseFilter(req)
		if err != nil {
			return err
		}
		resp.Items = s.ledger.Items(filter)
		count := len(resp.Items)
		resp.Count = &count
		return nil

	case ledgerapi.TypeItemCount:
		count := s.ledger.ItemCount()
		resp.Count = &count
		return nil

	case ledgerapi.TypePending:
		if caller.IsZero() {
			return core.ErrZeroAddress
		}
		amount := s.ledger.PendingReturn(caller)
		resp.Amount = &amount
		return nil

	case ledgerapi.TypeBalance:
		if s.balances == nil {
			return fmt.Errorf("%w: balances are not exposed by this ledger", ErrBadRequest)
		}
		if caller.IsZero() {
			return core.ErrZeroAddress
		}
		amount := s.balances.Balance(caller)
		resp.Amount = &amount
		return nil

	case ledgerapi.TypeEvents:
		events := s.ledger.Events(req.From, req.Limit)
		resp.Events = events
		count := len(events)
		resp.Count = &count
		// The head is only meaningful to a client holding the full tail.
		if count > 0 && events[count-1].Seq+1 == s.ledger.EventCount() {
			resp.HeadHash = s.ledger.HeadHash()
		}
		return nil

	case ledgerapi.TypePublicKey:
		if s.signer == nil {
			return fmt.Errorf("%w: receipts are disabled", ErrBadRequest)
		}
		pem, err := s.signer.PublicKeyPEM()
		if err != nil {
			return err
		}
		resp.PublicKey = pem
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownRequest, req.Type)
	}
}

func (s *Service) fillItem(id core.ItemID, resp *ledgerapi.LedgerResponse) error {
	it, err := s.ledger.Item(id)
	if err != nil {
		return err
	}
	resp.Item = &it
	return nil
}

// settle attaches the settlement and, when a signer is configured, a signed
// receipt. A signing failure does not undo the settlement; it is logged and
// the receipt left empty.
func (s *Service) settle(settlement *core.Settlement, resp *ledgerapi.LedgerResponse) {
	resp.Settlement = settlement
	if s.signer == nil {
		return
	}
	coseBytes, _, err := s.signer.Sign(*settlement)
	if err != nil {
		log.Printf("ERROR: Receipt for item %d could not be signed: %v", settlement.ItemID, err)
		return
	}
	resp.Receipt = coseBytes.EncodeBase64()
}

// maxDurationSeconds is the longest window a time.Duration can hold.
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

func parseAmount(field, raw string, allowEmpty bool) (decimal.Decimal, error) {
	if raw == "" {
		if allowEmpty {
			return decimal.Zero, nil
		}
		return decimal.Decimal{}, fmt.Errorf("%w: %s is required", core.ErrInvalidAmount, field)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s %q", core.ErrInvalidAmount, field, raw)
	}
	return d, nil
}

func parseFilter(req ledgerapi.LedgerRequest) (core.Filter, error) {
	f := core.Filter{
		Owner:   core.NewAddress(req.Owner),
		Creator: core.NewAddress(req.Creator),
		State:   core.ItemState(req.State),
	}
	switch f.State {
	case "", core.StateIdle, core.StateListed, core.StateAuctioning:
		return f, nil
	default:
		return core.Filter{}, fmt.Errorf("%w: unknown state %q", ErrBadRequest, req.State)
	}
}

func mutating(t string) bool {
	switch t {
	case ledgerapi.TypeMint, ledgerapi.TypeList, ledgerapi.TypeCancelSale, ledgerapi.TypeBuy,
		ledgerapi.TypeTransfer, ledgerapi.TypeStartAuction, ledgerapi.TypePlaceBid,
		ledgerapi.TypeEndAuction, ledgerapi.TypeWithdraw:
		return true
	}
	return false
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownRequest):
		return "UnknownRequest"
	case errors.Is(err, ErrBadRequest):
		return "BadRequest"
	default:
		return core.ErrorCode(err)
	}
}
