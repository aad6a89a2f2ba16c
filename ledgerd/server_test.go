package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/bank"
	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/ledgerapi"
	"github.com/cloudx-io/openmarket/market"
)

func startServer(t *testing.T, processor Processor, workers int) (*LedgerServer, string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)

	server := NewLedgerServer(processor, workers)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(listener)
	}()
	t.Cleanup(func() {
		_ = listener.Close()
		<-done
		server.Wait()
	})
	return server, listener.Addr().String()
}

func roundTrip(t *testing.T, addr string, payload string) ledgerapi.LedgerResponse {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	assert.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	_, err = io.WriteString(conn, payload)
	assert.NoError(t, err)
	assert.NoError(t, conn.(*net.TCPConn).CloseWrite())

	var resp ledgerapi.LedgerResponse
	assert.NoError(t, json.NewDecoder(conn).Decode(&resp))
	return resp
}

func newService(t *testing.T) (*market.Service, *bank.Memory) {
	t.Helper()
	b := bank.NewMemory()
	assert.NoError(t, b.Deposit("0xbob", decimal.NewFromInt(500)))
	l, err := core.New(core.Config{RefundMode: core.RefundPull}, b, nil, nil)
	assert.NoError(t, err)
	return market.NewService(l, nil, b), b
}

func TestLedgerServer_RequestResponse(t *testing.T) {
	svc, _ := newService(t)
	_, addr := startServer(t, svc, 4)

	ping := roundTrip(t, addr, `{"type":"ping"}`)
	check.True(t, ping.Success)

	minted := roundTrip(t, addr, `{"type":"mint","caller":"0xalice","metadata_ref":"ipfs://x","royalty_percentage":5}`)
	check.True(t, minted.Success)
	assert.NotNil(t, minted.ItemID)
	check.Equal(t, core.ItemID(0), *minted.ItemID)

	listed := roundTrip(t, addr, `{"type":"list","caller":"0xalice","item_id":0,"price":"100"}`)
	check.True(t, listed.Success)

	bought := roundTrip(t, addr, `{"type":"buy","caller":"0xbob","item_id":0,"amount":"100"}`)
	check.True(t, bought.Success)
	assert.NotNil(t, bought.Settlement)
	check.Equal(t, "5", bought.Settlement.Royalty.String())

	unknown := roundTrip(t, addr, `{"type":"key_request"}`)
	check.False(t, unknown.Success)
	check.Equal(t, "UnknownRequest", unknown.Code)
}

func TestLedgerServer_MalformedRequest(t *testing.T) {
	svc, _ := newService(t)
	_, addr := startServer(t, svc, 1)

	resp := roundTrip(t, addr, `{"type":`+"\n")
	check.False(t, resp.Success)
	check.Equal(t, "BadRequest", resp.Code)
}

type blockingProcessor struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingProcessor) Process(context.Context, ledgerapi.LedgerRequest) ledgerapi.LedgerResponse {
	p.entered <- struct{}{}
	<-p.release
	return ledgerapi.LedgerResponse{Type: "pong", Success: true}
}

func TestLedgerServer_RejectsWhenPoolFull(t *testing.T) {
	p := &blockingProcessor{entered: make(chan struct{}, 1), release: make(chan struct{})}
	_, addr := startServer(t, p, 1)

	busy, err := net.Dial("tcp", addr)
	assert.NoError(t, err)
	defer busy.Close()
	_, err = io.WriteString(busy, `{"type":"ping"}`)
	assert.NoError(t, err)
	<-p.entered

	// The only worker is occupied, so the next connection is closed unanswered.
	rejected, err := net.Dial("tcp", addr)
	assert.NoError(t, err)
	defer rejected.Close()
	_ = rejected.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = rejected.Read(make([]byte, 1))
	check.Error(t, err)

	close(p.release)
	_ = busy.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp ledgerapi.LedgerResponse
	assert.NoError(t, json.NewDecoder(busy).Decode(&resp))
	check.True(t, resp.Success)
}

func TestState_SaveAndLoad(t *testing.T) {
	svc, b := newService(t)
	ctx := context.Background()
	l := svc.Ledger()

	id, err := l.Mint(ctx, "0xalice", "ipfs://x", decimal.Zero, 10)
	assert.NoError(t, err)
	assert.NoError(t, l.StartAuction(ctx, "0xalice", id, decimal.NewFromInt(1), time.Hour))
	assert.NoError(t, l.PlaceBid(ctx, "0xbob", id, decimal.NewFromInt(40)))

	path := filepath.Join(t.TempDir(), "ledger.state")
	assert.NoError(t, saveState(path, l, b))

	b2 := bank.NewMemory()
	l2, err := core.New(core.Config{RefundMode: core.RefundPull}, b2, nil, nil)
	assert.NoError(t, err)
	ok, err := loadState(path, l2, b2)
	assert.NoError(t, err)
	check.True(t, ok)

	check.Equal(t, l.HeadHash(), l2.HeadHash())
	check.Equal(t, "460", b2.Balance("0xbob").String())
	check.Equal(t, "40", b2.Balance(l2.Escrow()).String())

	it, err := l2.Item(id)
	assert.NoError(t, err)
	check.Equal(t, core.Address("0xbob"), it.HighestBidder)

	missing, err := loadState(filepath.Join(t.TempDir(), "absent"), l2, b2)
	assert.NoError(t, err)
	check.False(t, missing)
}

func TestState_LoadIsAllOrNothing(t *testing.T) {
	svc, b := newService(t)
	l := svc.Ledger()
	_, err := l.Mint(context.Background(), "0xalice", "ipfs://x", decimal.Zero, 10)
	assert.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ledger.state")
	assert.NoError(t, saveState(path, l, b))

	// A ledger with a different escrow rejects the snapshot, after the
	// balances have already decoded cleanly.
	target := bank.NewMemory()
	assert.NoError(t, target.Deposit("0xcarol", decimal.NewFromInt(7)))
	other, err := core.New(core.Config{Escrow: "other:escrow"}, target, nil, nil)
	assert.NoError(t, err)

	_, err = loadState(path, other, target)
	check.Error(t, err)
	check.Equal(t, "7", target.Balance("0xcarol").String())
	check.Equal(t, "0", target.Balance("0xbob").String())
	check.Equal(t, 0, other.ItemCount())
}

func TestSeedDeposits(t *testing.T) {
	b := bank.NewMemory()
	assert.NoError(t, seedDeposits(b, map[string]string{"0xAlice": "25"}))
	check.Equal(t, "25", b.Balance("0xalice").String())

	check.Error(t, seedDeposits(b, map[string]string{"0xbob": "1.5x"}))
	check.Error(t, seedDeposits(b, map[string]string{"0xbob": "0"}))
}
