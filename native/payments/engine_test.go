package payments

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"agora/core/types"
	"agora/native/ledger"
)

type mockState struct {
	payments map[string]*Payment
	accounts map[[20]byte]*types.Account
}

func newMockState() *mockState {
	return &mockState{
		payments: make(map[string]*Payment),
		accounts: make(map[[20]byte]*types.Account),
	}
}

func (m *mockState) PaymentPut(p *Payment) error {
	m.payments[p.ID] = p.Clone()
	return nil
}

func (m *mockState) PaymentGet(id string) (*Payment, bool, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
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

func (m *mockState) AccountExists(addr [20]byte) (bool, error) {
	_, ok := m.accounts[addr]
	return ok, nil
}

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("pay-%03d", s.n)
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	sender   = testAddress(0x01)
	alice    = testAddress(0x02)
	bob      = testAddress(0x03)
	verifier = testAddress(0x04)
	platform = testAddress(0xFE)
)

type fixture struct {
	engine *Engine
	state  *mockState
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
	engine.SetPresenceView(state)
	engine.SetIDGenerator(&seqIDs{})

	f := &fixture{engine: engine, state: state, ledger: l, now: 1_000}
	engine.SetNowFunc(func() int64 { return f.now })

	if err := l.Credit(sender, "", big.NewInt(10_000)); err != nil {
		t.Fatalf("fund sender: %v", err)
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

func TestDirectSettlesImmediately(t *testing.T) {
	f := newFixture(t)
	p, err := f.engine.Direct(sender, alice, "", big.NewInt(1_000), 250)
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	if p.Status != StatusCompleted {
		t.Fatalf("expected completed, got %v", p.Status)
	}
	if got := f.balance(t, alice); got.Cmp(big.NewInt(975)) != 0 {
		t.Fatalf("alice balance %s, want 975", got)
	}
	if got := f.balance(t, platform); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("platform balance %s, want 25", got)
	}
}

func TestScheduledLifecycle(t *testing.T) {
	f := newFixture(t)
	p, err := f.engine.Scheduled(sender, alice, "", big.NewInt(500), 0, f.now+3_600)
	if err != nil {
		t.Fatalf("scheduled: %v", err)
	}
	if got := f.balance(t, sender); got.Cmp(big.NewInt(9_500)) != 0 {
		t.Fatalf("sender balance %s, want 9500 after hold", got)
	}

	// Not yet due.
	if err := f.engine.Execute(p.ID); !errors.Is(err, ErrNotDue) {
		t.Fatalf("expected ErrNotDue, got %v", err)
	}

	f.now += 3_600
	if err := f.engine.Execute(p.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := f.balance(t, alice); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("alice balance %s, want 500", got)
	}

	// Second execute fails: already completed.
	if err := f.engine.Execute(p.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestScheduledValidatesReleaseTime(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Scheduled(sender, alice, "", big.NewInt(10), 0, f.now); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestScheduledCancelRefunds(t *testing.T) {
	f := newFixture(t)
	p, err := f.engine.Scheduled(sender, alice, "", big.NewInt(500), 250, f.now+3_600)
	if err != nil {
		t.Fatalf("scheduled: %v", err)
	}
	if err := f.engine.Cancel(p.ID, alice); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.Cancel(p.ID, sender); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.balance(t, sender); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("sender balance %s, want full refund", got)
	}
	if err := f.engine.Execute(p.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("execute after cancel must fail, got %v", err)
	}
}

func TestConditionalSignatureThreshold(t *testing.T) {
	f := newFixture(t)
	cond := &Condition{Kind: ConditionSignatures, MinSignatures: 3}
	p, err := f.engine.Conditional(sender, alice, "", big.NewInt(1_000), 250, verifier, cond, f.now+3_600)
	if err != nil {
		t.Fatalf("conditional: %v", err)
	}
	if err := f.engine.Fulfill(p.ID, sender, Proof{Signatures: 3}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-verifier fulfill must fail, got %v", err)
	}
	if err := f.engine.Fulfill(p.ID, verifier, Proof{Signatures: 2}); !errors.Is(err, ErrProofRejected) {
		t.Fatalf("expected ErrProofRejected, got %v", err)
	}
	if err := f.engine.Fulfill(p.ID, verifier, Proof{Signatures: 3}); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if got := f.balance(t, alice); got.Cmp(big.NewInt(975)) != 0 {
		t.Fatalf("alice balance %s, want 975", got)
	}
}

func TestConditionalTimeCondition(t *testing.T) {
	f := newFixture(t)
	cond := &Condition{Kind: ConditionTime, UnlockTime: f.now + 100}
	p, err := f.engine.Conditional(sender, alice, "", big.NewInt(100), 0, verifier, cond, f.now+3_600)
	if err != nil {
		t.Fatalf("conditional: %v", err)
	}
	if err := f.engine.Fulfill(p.ID, verifier, Proof{}); !errors.Is(err, ErrProofRejected) {
		t.Fatalf("expected ErrProofRejected before unlock, got %v", err)
	}
	f.now += 100
	if err := f.engine.Fulfill(p.ID, verifier, Proof{}); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
}

func TestConditionalPresenceCondition(t *testing.T) {
	f := newFixture(t)
	target := testAddress(0x55)
	cond := &Condition{Kind: ConditionPresence, Target: target}
	p, err := f.engine.Conditional(sender, alice, "", big.NewInt(100), 0, verifier, cond, f.now+3_600)
	if err != nil {
		t.Fatalf("conditional: %v", err)
	}
	if err := f.engine.Fulfill(p.ID, verifier, Proof{}); !errors.Is(err, ErrProofRejected) {
		t.Fatalf("expected ErrProofRejected while absent, got %v", err)
	}
	if err := f.ledger.Credit(target, "", big.NewInt(1)); err != nil {
		t.Fatalf("credit target: %v", err)
	}
	if err := f.engine.Fulfill(p.ID, verifier, Proof{}); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
}

func TestConditionalDeadline(t *testing.T) {
	f := newFixture(t)
	cond := &Condition{Kind: ConditionCustom}
	p, err := f.engine.Conditional(sender, alice, "", big.NewInt(100), 0, verifier, cond, f.now+100)
	if err != nil {
		t.Fatalf("conditional: %v", err)
	}
	if err := f.engine.Expire(p.ID); !errors.Is(err, ErrDeadlineNotReached) {
		t.Fatalf("expected ErrDeadlineNotReached, got %v", err)
	}
	f.now += 101
	if err := f.engine.Fulfill(p.ID, verifier, Proof{}); !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("expected ErrDeadlinePassed, got %v", err)
	}
	if err := f.engine.Expire(p.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if got := f.balance(t, sender); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("sender balance %s, want full refund", got)
	}
	stored, _ := f.engine.Get(p.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("expected failed, got %v", stored.Status)
	}
}

func TestRecurringReservesAndChains(t *testing.T) {
	f := newFixture(t)
	parent, children, err := f.engine.Recurring(sender, alice, "", big.NewInt(1_000), 0, 3_600, 3)
	if err != nil {
		t.Fatalf("recurring: %v", err)
	}
	if parent.Status != StatusCompleted {
		t.Fatalf("parent must settle first installment, got %v", parent.Status)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 chained installments, got %d", len(children))
	}
	// First installment paid, two reserved.
	if got := f.balance(t, sender); got.Cmp(big.NewInt(7_000)) != 0 {
		t.Fatalf("sender balance %s, want 7000", got)
	}
	if got := f.balance(t, alice); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("alice balance %s, want 1000", got)
	}

	for k, id := range children {
		child, err := f.engine.Get(id)
		if err != nil {
			t.Fatalf("get child: %v", err)
		}
		if child.Kind != KindScheduled || child.ParentID != parent.ID {
			t.Fatalf("child %d not chained: %+v", k, child)
		}
		want := parent.CreatedAt + 3_600*int64(k+1)
		if child.ReleaseTime != want {
			t.Fatalf("child %d release %d, want %d", k, child.ReleaseTime, want)
		}
	}

	f.now += 2 * 3_600
	for _, id := range children {
		if err := f.engine.Execute(id); err != nil {
			t.Fatalf("execute child: %v", err)
		}
	}
	if got := f.balance(t, alice); got.Cmp(big.NewInt(3_000)) != 0 {
		t.Fatalf("alice balance %s, want 3000 after all installments", got)
	}
}

func TestRecurringRequiresFullFunding(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.engine.Recurring(sender, alice, "", big.NewInt(4_000), 0, 60, 3); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := f.balance(t, sender); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("sender mutated on failure: %s", got)
	}
}

func TestSplitSixtyForty(t *testing.T) {
	f := newFixture(t)
	// 100 units at 60/40 with 2.5% fee: A nets 60-fee(60)=59, B nets 40-fee(40)=39.
	p, err := f.engine.Split(sender, [][20]byte{alice, bob}, []uint32{60, 40}, "", big.NewInt(100), 250)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if p.Status != StatusCompleted {
		t.Fatalf("expected completed, got %v", p.Status)
	}
	if got := f.balance(t, alice); got.Cmp(big.NewInt(59)) != 0 {
		t.Fatalf("alice balance %s, want 59", got)
	}
	if got := f.balance(t, bob); got.Cmp(big.NewInt(39)) != 0 {
		t.Fatalf("bob balance %s, want 39", got)
	}
	if got := f.balance(t, platform); got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("platform balance %s, want 2", got)
	}
}

func TestSplitValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Split(sender, [][20]byte{alice, bob}, []uint32{60}, "", big.NewInt(100), 0); !errors.Is(err, ErrInvalidFanOut) {
		t.Fatalf("expected ErrInvalidFanOut, got %v", err)
	}
	if _, err := f.engine.Split(sender, [][20]byte{alice, bob}, []uint32{60, 39}, "", big.NewInt(100), 0); !errors.Is(err, ErrInvalidPercentages) {
		t.Fatalf("expected ErrInvalidPercentages for 99, got %v", err)
	}
	if _, err := f.engine.Split(sender, [][20]byte{alice, bob}, []uint32{60, 41}, "", big.NewInt(100), 0); !errors.Is(err, ErrInvalidPercentages) {
		t.Fatalf("expected ErrInvalidPercentages for 101, got %v", err)
	}
}

func TestBatchRefundsExcess(t *testing.T) {
	f := newFixture(t)
	p, err := f.engine.Batch(sender, [][20]byte{alice, bob}, []*big.Int{big.NewInt(400), big.NewInt(500)}, "", big.NewInt(1_000), 0)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if p.Status != StatusCompleted {
		t.Fatalf("expected completed, got %v", p.Status)
	}
	if got := f.balance(t, alice); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("alice balance %s, want 400", got)
	}
	if got := f.balance(t, bob); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("bob balance %s, want 500", got)
	}
	// Excess 100 returned; vault drained.
	if got := f.balance(t, sender); got.Cmp(big.NewInt(9_100)) != 0 {
		t.Fatalf("sender balance %s, want 9100", got)
	}
	if got := f.balance(t, ledger.ModuleVault(ModuleName)); got.Sign() != 0 {
		t.Fatalf("vault must be empty, got %s", got)
	}
}

func TestBatchOwnsAmounts(t *testing.T) {
	f := newFixture(t)
	amounts := []*big.Int{big.NewInt(400), big.NewInt(500)}
	p, err := f.engine.Batch(sender, [][20]byte{alice, bob}, amounts, "", big.NewInt(900), 0)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}

	// Mutating the caller's slice must not reach the stored record.
	amounts[0].SetInt64(1)
	amounts[1] = big.NewInt(2)

	stored, err := f.engine.Get(p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Amounts[0].Cmp(big.NewInt(400)) != 0 || stored.Amounts[1].Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("stored amounts mutated: %s, %s", stored.Amounts[0], stored.Amounts[1])
	}
}

func TestBatchOverFunded(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Batch(sender, [][20]byte{alice}, []*big.Int{big.NewInt(1_001)}, "", big.NewInt(1_000), 0)
	if !errors.Is(err, ErrBatchOverFunded) {
		t.Fatalf("expected ErrBatchOverFunded, got %v", err)
	}
	if got := f.balance(t, sender); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("sender mutated on failure: %s", got)
	}
}
