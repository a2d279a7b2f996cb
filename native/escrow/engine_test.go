package escrow

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"agora/core/events"
	"agora/core/types"
	"agora/native/fees"
	"agora/native/ledger"
)

type mockState struct {
	escrows  map[[32]byte]*Escrow
	accounts map[[20]byte]*types.Account
}

func newMockState() *mockState {
	return &mockState{
		escrows:  make(map[[32]byte]*Escrow),
		accounts: make(map[[20]byte]*types.Account),
	}
}

func (m *mockState) EscrowPut(e *Escrow) error {
	m.escrows[e.ID] = e.Clone()
	return nil
}

func (m *mockState) EscrowGet(id [32]byte) (*Escrow, bool, error) {
	esc, ok := m.escrows[id]
	if !ok {
		return nil, false, nil
	}
	return esc.Clone(), true, nil
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
	buyer    = testAddress(0x01)
	seller   = testAddress(0x02)
	arbiter  = testAddress(0x03)
	platform = testAddress(0xFE)
)

func newTestEngine(t *testing.T) (*Engine, *mockState, *ledger.Ledger) {
	t.Helper()
	state := newMockState()
	l := ledger.NewLedger()
	l.SetState(state)
	l.SetFeePolicy(fees.NewPolicy(0))
	l.SetFeeCollector(platform)

	engine := NewEngine()
	engine.SetState(state)
	engine.SetLedger(l)
	engine.SetArbiter(arbiter)
	engine.SetNowFunc(func() int64 { return 1_000 })

	if err := l.Credit(buyer, "", big.NewInt(1_000)); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
	return engine, state, l
}

func balance(t *testing.T, l *ledger.Ledger, addr [20]byte) *big.Int {
	t.Helper()
	got, err := l.Balance(addr, "")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return got
}

func TestCreateDebitsBuyerIntoVault(t *testing.T) {
	engine, _, l := newTestEngine(t)

	esc, err := engine.Create(buyer, seller, "", big.NewInt(100), 250, 2_000, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if esc.Status != StatusFunded {
		t.Fatalf("expected funded, got %v", esc.Status)
	}
	if got := balance(t, l, buyer); got.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("buyer balance %s, want 900", got)
	}
	if got := balance(t, l, ledger.ModuleVault(ModuleName)); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("vault balance %s, want 100", got)
	}
}

func TestCreateValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if _, err := engine.Create(buyer, seller, "", big.NewInt(0), 0, 2_000, 1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.Create(buyer, buyer, "", big.NewInt(10), 0, 2_000, 1); !errors.Is(err, ErrInvalidParties) {
		t.Fatalf("expected ErrInvalidParties, got %v", err)
	}
	if _, err := engine.Create(buyer, seller, "", big.NewInt(10), 0, 999, 1); !errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("expected ErrInvalidExpiry, got %v", err)
	}
	if _, err := engine.Create(buyer, seller, "", big.NewInt(10), 0, 2_000, 7); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Create(buyer, seller, "", big.NewInt(10), 0, 2_000, 7); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestReleaseSkimsFee(t *testing.T) {
	engine, _, l := newTestEngine(t)

	// 100 units at 2.5%: seller nets 97.5 -> floored big.Int math uses
	// base units, so use 1000 to keep the division exact.
	esc, err := engine.Create(buyer, seller, "", big.NewInt(1_000), 250, 2_000, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Release(esc.ID, buyer); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := balance(t, l, seller); got.Cmp(big.NewInt(975)) != 0 {
		t.Fatalf("seller balance %s, want 975", got)
	}
	if got := balance(t, l, platform); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("platform balance %s, want 25", got)
	}
	stored, err := engine.Get(esc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusReleased {
		t.Fatalf("expected released, got %v", stored.Status)
	}
}

func TestReleaseAuthorization(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	esc, err := engine.Create(buyer, seller, "", big.NewInt(100), 250, 2_000, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Release(esc.ID, seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestReleaseAfterExpiryFails(t *testing.T) {
	engine, _, l := newTestEngine(t)
	esc, err := engine.Create(buyer, seller, "", big.NewInt(100), 250, 2_000, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	engine.SetNowFunc(func() int64 { return 2_001 })
	if err := engine.Release(esc.ID, buyer); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if got := balance(t, l, ledger.ModuleVault(ModuleName)); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("vault mutated on failed release: %s", got)
	}
}

func TestRefundFullAmountNoFee(t *testing.T) {
	engine, _, l := newTestEngine(t)
	esc, err := engine.Create(buyer, seller, "", big.NewInt(100), 250, 2_000, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Refund(esc.ID, buyer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("buyer must not refund, got %v", err)
	}
	if err := engine.Refund(esc.ID, seller); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if got := balance(t, l, buyer); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("buyer balance %s, want full 1000", got)
	}
	if got := balance(t, l, platform); got.Sign() != 0 {
		t.Fatalf("refund must not skim a fee, platform got %s", got)
	}
}

func TestDisputeAndResolveSeller(t *testing.T) {
	engine, _, l := newTestEngine(t)
	esc, err := engine.Create(buyer, seller, "", big.NewInt(1_000), 250, 2_000, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Dispute(esc.ID, seller); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if err := engine.Release(esc.ID, buyer); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("release in disputed must fail, got %v", err)
	}
	if err := engine.Resolve(esc.ID, buyer, WinnerSeller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-arbiter resolve must fail, got %v", err)
	}
	if err := engine.Resolve(esc.ID, arbiter, WinnerSeller); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := balance(t, l, seller); got.Cmp(big.NewInt(975)) != 0 {
		t.Fatalf("seller balance %s, want fee-skimmed 975", got)
	}
	stored, _ := engine.Get(esc.ID)
	if stored.Status != StatusResolved || stored.Winner != WinnerSeller {
		t.Fatalf("unexpected resolution: %+v", stored)
	}
}

func TestResolveBuyerFullRefund(t *testing.T) {
	engine, _, l := newTestEngine(t)
	esc, err := engine.Create(buyer, seller, "", big.NewInt(1_000), 250, 2_000, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Dispute(esc.ID, buyer); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if err := engine.Resolve(esc.ID, arbiter, WinnerBuyer); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := balance(t, l, buyer); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("buyer balance %s, want full refund", got)
	}
	if got := balance(t, l, platform); got.Sign() != 0 {
		t.Fatalf("buyer win must not skim a fee, platform got %s", got)
	}
}

func TestClaimExpired(t *testing.T) {
	engine, _, l := newTestEngine(t)
	esc, err := engine.Create(buyer, seller, "", big.NewInt(100), 250, 2_000, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.ClaimExpired(esc.ID, buyer); !errors.Is(err, ErrNotExpired) {
		t.Fatalf("expected ErrNotExpired, got %v", err)
	}
	engine.SetNowFunc(func() int64 { return 2_001 })
	if err := engine.ClaimExpired(esc.ID, seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("seller must not claim, got %v", err)
	}
	if err := engine.ClaimExpired(esc.ID, buyer); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := balance(t, l, buyer); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("buyer balance %s, want full refund", got)
	}
}

func TestSingleTerminalOutcome(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	esc, err := engine.Create(buyer, seller, "", big.NewInt(100), 250, 2_000, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Release(esc.ID, buyer); err != nil {
		t.Fatalf("release: %v", err)
	}
	for name, op := range map[string]func() error{
		"release": func() error { return engine.Release(esc.ID, buyer) },
		"refund":  func() error { return engine.Refund(esc.ID, seller) },
		"dispute": func() error { return engine.Dispute(esc.ID, buyer) },
		"claim":   func() error { return engine.ClaimExpired(esc.ID, buyer) },
	} {
		if err := op(); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s after terminal state must fail with ErrInvalidState, got %v", name, err)
		}
	}
}

func TestNotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	var missing [32]byte
	if err := engine.Release(missing, buyer); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEventsCarryTimestamp(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ring := events.NewRing(8)
	engine.SetEmitter(ring)

	esc, err := engine.Create(buyer, seller, "", big.NewInt(100), 250, 2_000, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Release(esc.ID, buyer); err != nil {
		t.Fatalf("release: %v", err)
	}

	tail := ring.Latest(0)
	if len(tail) != 2 {
		t.Fatalf("expected 2 events, got %d", len(tail))
	}
	for _, evt := range tail {
		if evt.Attributes["timestamp"] != "1000" {
			t.Fatalf("%s timestamp %q, want 1000", evt.Type, evt.Attributes["timestamp"])
		}
	}
}
