package ledger

import (
	"math/big"
	"time"

	"agora/core/events"
	"agora/core/types"
	"agora/native/fees"
)

// State is the account storage contract the ledger mutates through. It
// is the sole boundary through which balances change.
type State interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// Ledger applies credits, debits and fee-skimmed transfers to principal
// accounts. Every precondition is evaluated before the first mutation so
// a failed operation leaves balances untouched.
type Ledger struct {
	state        State
	policy       fees.Policy
	feeCollector [20]byte
	emitter      events.Emitter
	nowFn        func() int64
}

// NewLedger creates a ledger with the default fee policy and a no-op
// emitter.
func NewLedger() *Ledger {
	return &Ledger{
		policy:  fees.NewPolicy(0),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the account storage backend.
func (l *Ledger) SetState(state State) { l.state = state }

// SetFeePolicy overrides the fee policy bounding transfer fees.
func (l *Ledger) SetFeePolicy(policy fees.Policy) { l.policy = policy }

// SetFeeCollector configures the platform account credited with fees.
func (l *Ledger) SetFeeCollector(addr [20]byte) { l.feeCollector = addr }

// SetEmitter configures the event emitter. Passing nil resets it to a
// no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the clock used to stamp emitted events. Passing
// nil restores the wall clock.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

func (l *Ledger) now() int64 { return l.nowFn() }

// FeePolicy exposes the bound fee policy to dependent engines.
func (l *Ledger) FeePolicy() fees.Policy { return l.policy }

// FeeCollector exposes the configured platform fee account.
func (l *Ledger) FeeCollector() [20]byte { return l.feeCollector }

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(evt)
}

func (l *Ledger) loadAccount(addr [20]byte) (*types.Account, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	account, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return account.Normalize(), nil
}

func balanceOf(account *types.Account, asset string) *big.Int {
	if account == nil {
		return big.NewInt(0)
	}
	if asset == AssetNative {
		if account.BalanceNative == nil {
			return big.NewInt(0)
		}
		return account.BalanceNative
	}
	if balance, ok := account.Tokens[asset]; ok && balance != nil {
		return balance
	}
	return big.NewInt(0)
}

func setBalance(account *types.Account, asset string, balance *big.Int) {
	if asset == AssetNative {
		account.BalanceNative = balance
		return
	}
	if account.Tokens == nil {
		account.Tokens = make(map[string]*big.Int)
	}
	account.Tokens[asset] = balance
}

// adjust applies a signed delta to one balance via read-modify-write.
// Preconditions (non-negative result) must be checked by the caller.
func (l *Ledger) adjust(addr [20]byte, asset string, delta *big.Int) error {
	account, err := l.loadAccount(addr)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(balanceOf(account, asset), delta)
	if next.Sign() < 0 {
		return ErrInsufficientFunds
	}
	setBalance(account, asset, next)
	return l.state.PutAccount(addr, account)
}

// Balance returns the current balance of addr for the given asset.
func (l *Ledger) Balance(addr [20]byte, asset string) (*big.Int, error) {
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	account, err := l.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(balanceOf(account, normalized)), nil
}

// Credit increases addr's balance by amount. Amount must be positive.
func (l *Ledger) Credit(addr [20]byte, asset string, amount *big.Int) error {
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := l.adjust(addr, normalized, amount); err != nil {
		return err
	}
	l.emit(NewCreditedEvent(addr, normalized, amount, l.now()))
	return nil
}

// Debit decreases addr's balance by amount, failing with
// ErrInsufficientFunds when the balance is too small.
func (l *Ledger) Debit(addr [20]byte, asset string, amount *big.Int) error {
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	account, err := l.loadAccount(addr)
	if err != nil {
		return err
	}
	if balanceOf(account, normalized).Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	if err := l.adjust(addr, normalized, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	l.emit(NewDebitedEvent(addr, normalized, amount, l.now()))
	return nil
}

// Transfer moves amount from one account to another without a fee.
func (l *Ledger) Transfer(from, to [20]byte, asset string, amount *big.Int) error {
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromAccount, err := l.loadAccount(from)
	if err != nil {
		return err
	}
	if balanceOf(fromAccount, normalized).Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	if err := l.adjust(from, normalized, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	return l.adjust(to, normalized, amount)
}

// TransferWithFee atomically debits from by amount, credits to with the
// net payout and routes the fee to the platform collector. The split
// always satisfies fee + net == amount.
func (l *Ledger) TransferWithFee(from, to [20]byte, asset string, amount *big.Int, bps uint32) (fees.ApplyResult, error) {
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return fees.ApplyResult{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fees.ApplyResult{}, ErrInvalidAmount
	}
	if l.feeCollector == ([20]byte{}) {
		return fees.ApplyResult{}, ErrFeeCollectorUnset
	}
	fromAccount, err := l.loadAccount(from)
	if err != nil {
		return fees.ApplyResult{}, err
	}
	if balanceOf(fromAccount, normalized).Cmp(amount) < 0 {
		return fees.ApplyResult{}, ErrInsufficientFunds
	}
	result := l.policy.Apply(fees.ApplyInput{Gross: amount, Bps: bps})
	if err := l.adjust(from, normalized, new(big.Int).Neg(amount)); err != nil {
		return fees.ApplyResult{}, err
	}
	if result.Net.Sign() > 0 {
		if err := l.adjust(to, normalized, result.Net); err != nil {
			return fees.ApplyResult{}, err
		}
	}
	if result.Fee.Sign() > 0 {
		if err := l.adjust(l.feeCollector, normalized, result.Fee); err != nil {
			return fees.ApplyResult{}, err
		}
	}
	l.emit(NewTransferEvent(from, to, normalized, amount, result.Fee, l.now()))
	return result, nil
}
