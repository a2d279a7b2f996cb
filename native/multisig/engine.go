package multisig

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"agora/core/events"
	"agora/native/common"
	"agora/native/ledger"
)

// ModuleName identifies the multisig module for pause checks and vault
// derivation.
const ModuleName = "multisig"

type engineState interface {
	WalletPut(*Wallet) error
	WalletGet(id [32]byte) (*Wallet, bool, error)
	WalletTxPut(*PendingTransaction) error
	WalletTxGet(walletID [32]byte, txID uint64) (*PendingTransaction, bool, error)
}

// CallTarget executes the externally-controlled payload attached to a
// transaction after the value transfer has settled. Implementations are
// untrusted: the engine marks the transaction executed and debits the
// wallet before invoking them, so a re-entrant call observes the
// already-spent balance.
type CallTarget interface {
	Call(destination [20]byte, value *big.Int, command Command) error
}

// Engine manages shared wallets gated on an N-of-M confirmation
// threshold.
type Engine struct {
	state   engineState
	ledger  *ledger.Ledger
	emitter events.Emitter
	pauses  common.PauseView
	target  CallTarget
	admin   [20]byte
	vault   [20]byte
	nowFn   func() int64
}

// NewEngine creates a multisig engine with a no-op emitter and no call
// target.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		vault:   ledger.ModuleVault(ModuleName),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the wallet storage backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the account ledger used for custody moves.
func (e *Engine) SetLedger(l *ledger.Ledger) { e.ledger = l }

// SetAdmin configures the platform identity allowed to cancel any
// pending transaction.
func (e *Engine) SetAdmin(addr [20]byte) { e.admin = addr }

// SetCallTarget configures the executor for opaque command payloads.
func (e *Engine) SetCallTarget(target CallTarget) { e.target = target }

// SetPauses configures the pause view consulted before any transition.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source, primarily for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a
// no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.ledger == nil {
		return ErrNilLedger
	}
	return common.Guard(e.pauses, ModuleName)
}

func (e *Engine) loadWallet(id [32]byte) (*Wallet, error) {
	wallet, ok, err := e.state.WalletGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return wallet, nil
}

func (e *Engine) loadTx(walletID [32]byte, txID uint64) (*PendingTransaction, error) {
	tx, ok, err := e.state.WalletTxGet(walletID, txID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTxNotFound
	}
	return tx, nil
}

// WalletID derives the deterministic identifier for an owner set and
// caller-supplied nonce.
func WalletID(owners [][20]byte, nonce uint64) [32]byte {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	parts := make([][]byte, 0, len(owners)+1)
	for i := range owners {
		parts = append(parts, owners[i][:])
	}
	parts = append(parts, nonceBytes[:])
	return ethcrypto.Keccak256Hash(parts...)
}

// CreateWallet validates the owner set and threshold and persists a new
// empty wallet.
func (e *Engine) CreateWallet(owners [][20]byte, threshold uint32, nonce uint64) (*Wallet, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		return nil, ErrNoOwners
	}
	seen := make(map[[20]byte]struct{}, len(owners))
	for _, owner := range owners {
		if owner == ([20]byte{}) {
			return nil, ErrNoOwners
		}
		if _, dup := seen[owner]; dup {
			return nil, ErrDuplicateOwner
		}
		seen[owner] = struct{}{}
	}
	if threshold < 1 || int(threshold) > len(owners) {
		return nil, ErrInvalidThreshold
	}
	id := WalletID(owners, nonce)
	if _, ok, err := e.state.WalletGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrExists
	}
	wallet := &Wallet{
		ID:        id,
		Owners:    append([][20]byte(nil), owners...),
		Threshold: threshold,
		Balance:   big.NewInt(0),
		CreatedAt: e.nowFn(),
	}
	if err := e.state.WalletPut(wallet); err != nil {
		return nil, err
	}
	e.emit(NewWalletCreatedEvent(wallet, e.nowFn()))
	return wallet.Clone(), nil
}

// Wallet returns the stored wallet for id.
func (e *Engine) Wallet(id [32]byte) (*Wallet, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	wallet, err := e.loadWallet(id)
	if err != nil {
		return nil, err
	}
	return wallet.Clone(), nil
}

// Transaction returns a stored pending transaction.
func (e *Engine) Transaction(walletID [32]byte, txID uint64) (*PendingTransaction, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	tx, err := e.loadTx(walletID, txID)
	if err != nil {
		return nil, err
	}
	return tx.Clone(), nil
}

// Deposit moves amount from the depositor's account into wallet custody.
// Anyone may deposit.
func (e *Engine) Deposit(id [32]byte, from [20]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidValue
	}
	wallet, err := e.loadWallet(id)
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(from, e.vault, ledger.AssetNative, amount); err != nil {
		return err
	}
	wallet.Balance = new(big.Int).Add(wallet.Balance, amount)
	if err := e.state.WalletPut(wallet); err != nil {
		return err
	}
	e.emit(NewDepositEvent(wallet, from, amount, e.nowFn()))
	return nil
}

// Propose records a new pending transaction and auto-confirms it for its
// creator. The wallet balance must cover the value at proposal time; it
// is re-checked at execution.
func (e *Engine) Propose(walletID [32]byte, caller, destination [20]byte, value *big.Int, command Command) (*PendingTransaction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if value == nil || value.Sign() <= 0 {
		return nil, ErrInvalidValue
	}
	if !command.Valid() {
		return nil, ErrInvalidCommand
	}
	wallet, err := e.loadWallet(walletID)
	if err != nil {
		return nil, err
	}
	if !wallet.IsOwner(caller) {
		return nil, ErrNotOwner
	}
	if wallet.Balance.Cmp(value) < 0 {
		return nil, ErrInsufficientFunds
	}
	wallet.TxCount++
	tx := &PendingTransaction{
		ID:          wallet.TxCount,
		WalletID:    walletID,
		Creator:     caller,
		Destination: destination,
		Value:       new(big.Int).Set(value),
		Command:     Command{Kind: command.Kind, Data: append([]byte(nil), command.Data...)},
		Confirmed:   [][20]byte{caller},
		CreatedAt:   e.nowFn(),
	}
	if err := e.state.WalletTxPut(tx); err != nil {
		return nil, err
	}
	if err := e.state.WalletPut(wallet); err != nil {
		return nil, err
	}
	e.emit(NewProposedEvent(wallet, tx, e.nowFn()))
	return tx.Clone(), nil
}

// Confirm records an owner's approval of a pending transaction.
func (e *Engine) Confirm(walletID [32]byte, txID uint64, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	wallet, err := e.loadWallet(walletID)
	if err != nil {
		return err
	}
	if !wallet.IsOwner(caller) {
		return ErrNotOwner
	}
	tx, err := e.loadTx(walletID, txID)
	if err != nil {
		return err
	}
	if tx.Executed {
		return ErrAlreadyExecuted
	}
	if tx.Cancelled {
		return ErrCancelled
	}
	if tx.HasConfirmed(caller) {
		return ErrAlreadyConfirmed
	}
	tx.Confirmed = append(tx.Confirmed, caller)
	if err := e.state.WalletTxPut(tx); err != nil {
		return err
	}
	e.emit(NewConfirmedEvent(wallet, tx, caller, e.nowFn()))
	return nil
}

// Execute releases the transaction value to the destination once the
// confirmation threshold is met. The transaction is marked executed and
// the wallet debited before the destination payload runs, so a
// re-entrant call cannot double-spend. A failing external call surfaces
// as ErrExternalCallFailed; the debit is not rolled back.
func (e *Engine) Execute(walletID [32]byte, txID uint64, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	wallet, err := e.loadWallet(walletID)
	if err != nil {
		return err
	}
	if !wallet.IsOwner(caller) {
		return ErrNotOwner
	}
	tx, err := e.loadTx(walletID, txID)
	if err != nil {
		return err
	}
	if tx.Executed {
		return ErrAlreadyExecuted
	}
	if tx.Cancelled {
		return ErrCancelled
	}
	if uint32(len(tx.Confirmed)) < wallet.Threshold {
		return ErrThresholdNotMet
	}
	if wallet.Balance.Cmp(tx.Value) < 0 {
		return ErrInsufficientFunds
	}
	if tx.Command.Kind == CommandOpaque && e.target == nil {
		return ErrNoCallTarget
	}
	tx.Executed = true
	if err := e.state.WalletTxPut(tx); err != nil {
		return err
	}
	wallet.Balance = new(big.Int).Sub(wallet.Balance, tx.Value)
	if err := e.state.WalletPut(wallet); err != nil {
		return err
	}
	if err := e.ledger.Transfer(e.vault, tx.Destination, ledger.AssetNative, tx.Value); err != nil {
		return err
	}
	if tx.Command.Kind == CommandOpaque {
		if err := e.target.Call(tx.Destination, tx.Value, tx.Command); err != nil {
			e.emit(NewExecutionFailedEvent(wallet, tx, err, e.nowFn()))
			return fmt.Errorf("%w: %v", ErrExternalCallFailed, err)
		}
	}
	e.emit(NewExecutedEvent(wallet, tx, e.nowFn()))
	return nil
}

// Cancel voids a pending transaction. Only its creator or the platform
// admin may cancel, and only before execution.
func (e *Engine) Cancel(walletID [32]byte, txID uint64, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	wallet, err := e.loadWallet(walletID)
	if err != nil {
		return err
	}
	tx, err := e.loadTx(walletID, txID)
	if err != nil {
		return err
	}
	if tx.Executed {
		return ErrAlreadyExecuted
	}
	if tx.Cancelled {
		return ErrCancelled
	}
	if caller != tx.Creator && (e.admin == ([20]byte{}) || caller != e.admin) {
		return ErrUnauthorized
	}
	tx.Cancelled = true
	if err := e.state.WalletTxPut(tx); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(wallet, tx, e.nowFn()))
	return nil
}

// AddOwner extends the wallet owner set. Only an existing owner may add.
func (e *Engine) AddOwner(walletID [32]byte, caller, owner [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	wallet, err := e.loadWallet(walletID)
	if err != nil {
		return err
	}
	if !wallet.IsOwner(caller) {
		return ErrNotOwner
	}
	if owner == ([20]byte{}) {
		return ErrNoOwners
	}
	if wallet.IsOwner(owner) {
		return ErrDuplicateOwner
	}
	wallet.Owners = append(wallet.Owners, owner)
	if err := e.state.WalletPut(wallet); err != nil {
		return err
	}
	e.emit(NewOwnerAddedEvent(wallet, owner, e.nowFn()))
	return nil
}

// RemoveOwner shrinks the owner set, rejecting removals that would drop
// the owner count below the current threshold.
func (e *Engine) RemoveOwner(walletID [32]byte, caller, owner [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	wallet, err := e.loadWallet(walletID)
	if err != nil {
		return err
	}
	if !wallet.IsOwner(caller) {
		return ErrNotOwner
	}
	if !wallet.IsOwner(owner) {
		return ErrNotOwner
	}
	if uint32(len(wallet.Owners)-1) < wallet.Threshold {
		return ErrOwnerBelowThreshold
	}
	filtered := wallet.Owners[:0]
	for _, existing := range wallet.Owners {
		if existing != owner {
			filtered = append(filtered, existing)
		}
	}
	wallet.Owners = filtered
	if err := e.state.WalletPut(wallet); err != nil {
		return err
	}
	e.emit(NewOwnerRemovedEvent(wallet, owner, e.nowFn()))
	return nil
}
