package auction

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"agora/core/types"
	"agora/native/ledger"
)

type mockState struct {
	auctions map[[32]byte]*Auction
	dutch    map[[32]byte]*DutchAuction
	accounts map[[20]byte]*types.Account
}

func newMockState() *mockState {
	return &mockState{
		auctions: make(map[[32]byte]*Auction),
		dutch:    make(map[[32]byte]*DutchAuction),
		accounts: make(map[[20]byte]*types.Account),
	}
}

func (m *mockState) AuctionPut(a *Auction) error {
	m.auctions[a.ID] = a.Clone()
	return nil
}

func (m *mockState) AuctionGet(id [32]byte) (*Auction, bool, error) {
	a, ok := m.auctions[id]
	if !ok {
		return nil, false, nil
	}
	return a.Clone(), true, nil
}

func (m *mockState) DutchPut(d *DutchAuction) error {
	m.dutch[d.ID] = d.Clone()
	return nil
}

func (m *mockState) DutchGet(id [32]byte) (*DutchAuction, bool, error) {
	d, ok := m.dutch[id]
	if !ok {
		return nil, false, nil
	}
	return d.Clone(), true, nil
}

func (m *mockState) GetAccount(addr [20]byte) (*types.Account, error) {
	if account, ok := m.accounts[addr]; ok {
		return account.Clone(), nil
	}
	return &types.Account{BalanceNative: big.NewInt(0)}, nil
}

func (m *mockState) PutAccount(addr [20]byte, account *types.Account) error {
	m.accounts[addr] = account.Clone()
	return nil
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	seller   = testAddress(0x01)
	alice    = testAddress(0x02)
	bob      = testAddress(0x03)
	platform = testAddress(0xFE)
	itemRef  = testItemRef()
)

func testItemRef() [32]byte {
	var ref [32]byte
	copy(ref[:], bytes.Repeat([]byte{0x11}, 32))
	return ref
}

type fixture struct {
	engine *Engine
	ledger *ledger.Ledger
	now    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := newMockState()
	l := ledger.NewLedger()
	l.SetState(state)
	l.SetFeeCollector(platform)

	engine := NewEngine()
	engine.SetState(state)
	engine.SetLedger(l)

	f := &fixture{engine: engine, ledger: l, now: 1_000}
	engine.SetNowFunc(func() int64 { return f.now })

	for _, addr := range [][20]byte{alice, bob} {
		if err := l.Credit(addr, "", big.NewInt(10_000)); err != nil {
			t.Fatalf("fund bidder: %v", err)
		}
	}
	return f
}

func (f *fixture) balance(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	got, err := f.ledger.Balance(addr, "")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return got
}

func createAuction(t *testing.T, f *fixture, reserve *big.Int) *Auction {
	t.Helper()
	a, err := f.engine.Create(itemRef, seller, big.NewInt(100), 3_600, big.NewInt(10), reserve, 250, 1)
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}
	return a
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Create(itemRef, seller, big.NewInt(0), 10, big.NewInt(1), nil, 0, 1); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := f.engine.Create(itemRef, seller, big.NewInt(10), 0, big.NewInt(1), nil, 0, 1); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if _, err := f.engine.Create(itemRef, seller, big.NewInt(10), 10, nil, nil, 0, 1); !errors.Is(err, ErrInvalidIncrement) {
		t.Fatalf("expected ErrInvalidIncrement, got %v", err)
	}
}

func TestBidMonotonicity(t *testing.T) {
	f := newFixture(t)
	a := createAuction(t, f, nil)

	if err := f.engine.PlaceBid(a.ID, alice, big.NewInt(109)); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("expected ErrBidTooLow, got %v", err)
	}
	if err := f.engine.PlaceBid(a.ID, alice, big.NewInt(110)); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if err := f.engine.PlaceBid(a.ID, bob, big.NewInt(115)); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("expected ErrBidTooLow under increment, got %v", err)
	}
	if err := f.engine.PlaceBid(a.ID, bob, big.NewInt(120)); err != nil {
		t.Fatalf("second bid: %v", err)
	}

	stored, _ := f.engine.Get(a.ID)
	if stored.CurrentPrice.Cmp(big.NewInt(120)) != 0 || stored.BidCount != 2 {
		t.Fatalf("unexpected state: price %s bids %d", stored.CurrentPrice, stored.BidCount)
	}
	// Outbid refund returned alice's hold.
	if got := f.balance(t, alice); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("alice balance %s, want refunded 10000", got)
	}
	if got := f.balance(t, bob); got.Cmp(big.NewInt(9_880)) != 0 {
		t.Fatalf("bob balance %s, want 9880", got)
	}
}

func TestSellerCannotBid(t *testing.T) {
	f := newFixture(t)
	a := createAuction(t, f, nil)
	if err := f.engine.PlaceBid(a.ID, seller, big.NewInt(200)); !errors.Is(err, ErrSelfBid) {
		t.Fatalf("expected ErrSelfBid, got %v", err)
	}
}

func TestBidAfterEndTime(t *testing.T) {
	f := newFixture(t)
	a := createAuction(t, f, nil)
	f.now = a.EndTime
	if err := f.engine.PlaceBid(a.ID, alice, big.NewInt(200)); !errors.Is(err, ErrBiddingClosed) {
		t.Fatalf("expected ErrBiddingClosed, got %v", err)
	}
}

func TestEndSettlesFeeSkimmed(t *testing.T) {
	f := newFixture(t)
	a := createAuction(t, f, nil)
	if err := f.engine.PlaceBid(a.ID, alice, big.NewInt(1_000)); err != nil {
		t.Fatalf("bid: %v", err)
	}
	f.now = a.EndTime
	ended, err := f.engine.End(a.ID, bob)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != StatusCompleted {
		t.Fatalf("expected completed, got %v", ended.Status)
	}
	if got := f.balance(t, seller); got.Cmp(big.NewInt(975)) != 0 {
		t.Fatalf("seller balance %s, want fee-skimmed 975", got)
	}
	if got := f.balance(t, platform); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("platform balance %s, want 25", got)
	}
}

func TestEndEarlyRequiresSeller(t *testing.T) {
	f := newFixture(t)
	a := createAuction(t, f, nil)
	if _, err := f.engine.End(a.ID, alice); !errors.Is(err, ErrNotEnded) {
		t.Fatalf("expected ErrNotEnded, got %v", err)
	}
	if _, err := f.engine.End(a.ID, seller); err != nil {
		t.Fatalf("seller early end: %v", err)
	}
}

func TestReserveUnmetFailsAndRefunds(t *testing.T) {
	f := newFixture(t)
	a := createAuction(t, f, big.NewInt(5_000))
	if err := f.engine.PlaceBid(a.ID, alice, big.NewInt(1_000)); err != nil {
		t.Fatalf("bid: %v", err)
	}
	f.now = a.EndTime
	ended, err := f.engine.End(a.ID, alice)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != StatusFailed {
		t.Fatalf("expected failed, got %v", ended.Status)
	}
	if got := f.balance(t, alice); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("alice must be fully refunded, got %s", got)
	}
	if got := f.balance(t, seller); got.Sign() != 0 {
		t.Fatalf("seller must receive nothing, got %s", got)
	}
}

func TestEndNoBidsFails(t *testing.T) {
	f := newFixture(t)
	a := createAuction(t, f, nil)
	f.now = a.EndTime
	ended, err := f.engine.End(a.ID, alice)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != StatusFailed {
		t.Fatalf("expected failed, got %v", ended.Status)
	}
}

func TestCancelOnlyWithoutBids(t *testing.T) {
	f := newFixture(t)
	a := createAuction(t, f, nil)
	if err := f.engine.Cancel(a.ID, alice); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.PlaceBid(a.ID, alice, big.NewInt(110)); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if err := f.engine.Cancel(a.ID, seller); !errors.Is(err, ErrHasBids) {
		t.Fatalf("expected ErrHasBids, got %v", err)
	}

	b, err := f.engine.Create(itemRef, seller, big.NewInt(100), 3_600, big.NewInt(10), nil, 0, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.engine.Cancel(b.ID, seller); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	stored, _ := f.engine.Get(b.ID)
	if stored.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %v", stored.Status)
	}
}
