package escrow

import (
	"encoding/binary"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"agora/core/events"
	"agora/native/common"
	"agora/native/ledger"
)

// ModuleName identifies the escrow module for pause checks and vault
// derivation.
const ModuleName = "escrow"

type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id [32]byte) (*Escrow, bool, error)
}

// Engine drives the two-party escrow state machine. Funds are held in
// the module vault between the combined create+fund step and the single
// terminal transition.
type Engine struct {
	state   engineState
	ledger  *ledger.Ledger
	emitter events.Emitter
	pauses  common.PauseView
	arbiter [20]byte
	vault   [20]byte
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		vault:   ledger.ModuleVault(ModuleName),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the escrow storage backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the account ledger used for settlement.
func (e *Engine) SetLedger(l *ledger.Ledger) { e.ledger = l }

// SetArbiter configures the identity allowed to resolve disputes.
func (e *Engine) SetArbiter(addr [20]byte) { e.arbiter = addr }

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

func (e *Engine) now() int64 { return e.nowFn() }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.ledger == nil {
		return ErrNilLedger
	}
	return common.Guard(e.pauses, ModuleName)
}

func (e *Engine) load(id [32]byte) (*Escrow, error) {
	esc, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return esc, nil
}

// EscrowID derives the deterministic identifier for a buyer/seller pair
// and caller-supplied nonce.
func EscrowID(buyer, seller [20]byte, nonce uint64) [32]byte {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	return ethcrypto.Keccak256Hash(buyer[:], seller[:], nonceBytes[:])
}

// Create validates the escrow definition, moves the amount from the
// buyer into the module vault and persists the escrow as funded.
func (e *Engine) Create(buyer, seller [20]byte, asset string, amount *big.Int, feeBps uint32, expiry int64, nonce uint64) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	normalized, err := ledger.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if buyer == seller {
		return nil, ErrInvalidParties
	}
	now := e.now()
	if expiry <= now {
		return nil, ErrInvalidExpiry
	}
	id := EscrowID(buyer, seller, nonce)
	if _, ok, err := e.state.EscrowGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrExists
	}
	if err := e.ledger.Transfer(buyer, e.vault, normalized, amount); err != nil {
		return nil, err
	}
	esc := &Escrow{
		ID:        id,
		Buyer:     buyer,
		Seller:    seller,
		Asset:     normalized,
		Amount:    new(big.Int).Set(amount),
		FeeBps:    feeBps,
		CreatedAt: now,
		Expiry:    expiry,
		Status:    StatusFunded,
	}
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(esc, now))
	return esc.Clone(), nil
}

// Get returns the stored escrow for id.
func (e *Engine) Get(id [32]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	esc, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// Release settles the escrow in favour of the seller, skimming the
// platform fee. Only the buyer may release, and only before expiry.
func (e *Engine) Release(id [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.load(id)
	if err != nil {
		return err
	}
	if esc.Status != StatusFunded {
		return ErrInvalidState
	}
	if caller != esc.Buyer {
		return ErrUnauthorized
	}
	if e.now() > esc.Expiry {
		return ErrExpired
	}
	if _, err := e.ledger.TransferWithFee(e.vault, esc.Seller, esc.Asset, esc.Amount, esc.FeeBps); err != nil {
		return err
	}
	esc.Status = StatusReleased
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewReleasedEvent(esc, e.now()))
	return nil
}

// Refund returns the full amount to the buyer. Only the seller may
// voluntarily refund; no fee is taken.
func (e *Engine) Refund(id [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.load(id)
	if err != nil {
		return err
	}
	if esc.Status != StatusFunded {
		return ErrInvalidState
	}
	if caller != esc.Seller {
		return ErrUnauthorized
	}
	return e.refund(esc)
}

// Dispute flags the escrow as disputed. Either party may raise it.
func (e *Engine) Dispute(id [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.load(id)
	if err != nil {
		return err
	}
	if esc.Status != StatusFunded {
		return ErrInvalidState
	}
	if caller != esc.Buyer && caller != esc.Seller {
		return ErrUnauthorized
	}
	esc.Status = StatusDisputed
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewDisputedEvent(esc, e.now()))
	return nil
}

// Resolve settles a disputed escrow for the winner chosen by the
// arbiter. A seller win skims the fee like Release; a buyer win refunds
// in full.
func (e *Engine) Resolve(id [32]byte, caller [20]byte, winner Winner) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.arbiter == ([20]byte{}) {
		return ErrArbiterUnset
	}
	esc, err := e.load(id)
	if err != nil {
		return err
	}
	if esc.Status != StatusDisputed {
		return ErrInvalidState
	}
	if caller != e.arbiter {
		return ErrUnauthorized
	}
	switch winner {
	case WinnerSeller:
		if _, err := e.ledger.TransferWithFee(e.vault, esc.Seller, esc.Asset, esc.Amount, esc.FeeBps); err != nil {
			return err
		}
	case WinnerBuyer:
		if err := e.ledger.Transfer(e.vault, esc.Buyer, esc.Asset, esc.Amount); err != nil {
			return err
		}
	default:
		return ErrInvalidWinner
	}
	esc.Status = StatusResolved
	esc.Winner = winner
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewResolvedEvent(esc, e.now()))
	return nil
}

// ClaimExpired lets the buyer recover the funds once the deadline has
// elapsed without a release.
func (e *Engine) ClaimExpired(id [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.load(id)
	if err != nil {
		return err
	}
	if esc.Status != StatusFunded {
		return ErrInvalidState
	}
	if caller != esc.Buyer {
		return ErrUnauthorized
	}
	if e.now() <= esc.Expiry {
		return ErrNotExpired
	}
	return e.refund(esc)
}

func (e *Engine) refund(esc *Escrow) error {
	if err := e.ledger.Transfer(e.vault, esc.Buyer, esc.Asset, esc.Amount); err != nil {
		return err
	}
	esc.Status = StatusRefunded
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewRefundedEvent(esc, e.now()))
	return nil
}
