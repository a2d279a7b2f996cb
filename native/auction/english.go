package auction

import (
	"encoding/binary"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"agora/core/events"
	"agora/native/common"
	"agora/native/ledger"
)

// ModuleName identifies the auction module for pause checks and vault
// derivation.
const ModuleName = "auction"

type engineState interface {
	AuctionPut(*Auction) error
	AuctionGet(id [32]byte) (*Auction, bool, error)
	DutchPut(*DutchAuction) error
	DutchGet(id [32]byte) (*DutchAuction, bool, error)
}

// Engine runs English and Dutch auctions over the account ledger. Held
// bids live in the module vault until the auction settles or refunds.
type Engine struct {
	state   engineState
	ledger  *ledger.Ledger
	emitter events.Emitter
	pauses  common.PauseView
	vault   [20]byte
	nowFn   func() int64
}

// NewEngine creates an auction engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		vault:   ledger.ModuleVault(ModuleName),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the auction storage backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the account ledger used for settlement.
func (e *Engine) SetLedger(l *ledger.Ledger) { e.ledger = l }

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

// AuctionID derives the deterministic identifier for an item/seller pair
// and caller-supplied nonce.
func AuctionID(itemRef [32]byte, seller [20]byte, nonce uint64) [32]byte {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	return ethcrypto.Keccak256Hash(itemRef[:], seller[:], nonceBytes[:])
}

// Create opens an English auction. A nil reserve means no reserve.
func (e *Engine) Create(itemRef [32]byte, seller [20]byte, startingPrice *big.Int, duration int64, minIncrement, reserve *big.Int, feeBps uint32, nonce uint64) (*Auction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if startingPrice == nil || startingPrice.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if minIncrement == nil || minIncrement.Sign() <= 0 {
		return nil, ErrInvalidIncrement
	}
	if reserve != nil && reserve.Sign() <= 0 {
		return nil, ErrInvalidReserve
	}
	now := e.nowFn()
	id := AuctionID(itemRef, seller, nonce)
	if _, ok, err := e.state.AuctionGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrExists
	}
	a := &Auction{
		ID:            id,
		ItemRef:       itemRef,
		Seller:        seller,
		StartingPrice: new(big.Int).Set(startingPrice),
		CurrentPrice:  new(big.Int).Set(startingPrice),
		MinIncrement:  new(big.Int).Set(minIncrement),
		FeeBps:        feeBps,
		CreatedAt:     now,
		EndTime:       now + duration,
		Status:        StatusActive,
	}
	if reserve != nil {
		a.ReservePrice = new(big.Int).Set(reserve)
	}
	if err := e.state.AuctionPut(a); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(a, now))
	return a.Clone(), nil
}

// Get returns the stored English auction for id.
func (e *Engine) Get(id [32]byte) (*Auction, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	a, ok, err := e.state.AuctionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

// PlaceBid accepts a strictly higher bid, holding the amount in the
// module vault and refunding the previous high bidder.
func (e *Engine) PlaceBid(id [32]byte, bidder [20]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	a, ok, err := e.state.AuctionGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if a.Status != StatusActive {
		return ErrInvalidState
	}
	now := e.nowFn()
	if now >= a.EndTime {
		return ErrBiddingClosed
	}
	if bidder == a.Seller {
		return ErrSelfBid
	}
	minimum := new(big.Int).Add(a.CurrentPrice, a.MinIncrement)
	if amount == nil || amount.Cmp(minimum) < 0 {
		return ErrBidTooLow
	}
	if err := e.ledger.Transfer(bidder, e.vault, ledger.AssetNative, amount); err != nil {
		return err
	}
	if a.HasBids() {
		if err := e.ledger.Transfer(e.vault, a.HighestBidder, ledger.AssetNative, a.CurrentPrice); err != nil {
			return err
		}
	}
	a.HighestBidder = bidder
	a.CurrentPrice = new(big.Int).Set(amount)
	a.BidCount++
	if err := e.state.AuctionPut(a); err != nil {
		return err
	}
	e.emit(NewBidEvent(a, bidder, now))
	return nil
}

// End closes the auction. The seller may end early; anyone may end once
// the end time has passed. With a high bid meeting the reserve the held
// amount settles fee-skimmed to the seller and the item reference
// transfers to the bidder; otherwise the bidder is refunded and the
// auction fails.
func (e *Engine) End(id [32]byte, caller [20]byte) (*Auction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	a, ok, err := e.state.AuctionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != StatusActive {
		return nil, ErrInvalidState
	}
	now := e.nowFn()
	if caller != a.Seller && now < a.EndTime {
		return nil, ErrNotEnded
	}
	switch {
	case !a.HasBids():
		a.Status = StatusFailed
	case a.ReservePrice != nil && a.CurrentPrice.Cmp(a.ReservePrice) < 0:
		if err := e.ledger.Transfer(e.vault, a.HighestBidder, ledger.AssetNative, a.CurrentPrice); err != nil {
			return nil, err
		}
		a.Status = StatusFailed
	default:
		if _, err := e.ledger.TransferWithFee(e.vault, a.Seller, ledger.AssetNative, a.CurrentPrice, a.FeeBps); err != nil {
			return nil, err
		}
		a.Status = StatusCompleted
	}
	if err := e.state.AuctionPut(a); err != nil {
		return nil, err
	}
	e.emit(NewEndedEvent(a, now))
	return a.Clone(), nil
}

// Cancel withdraws an auction before any bid has been accepted. Seller
// only.
func (e *Engine) Cancel(id [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	a, ok, err := e.state.AuctionGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if a.Status != StatusActive {
		return ErrInvalidState
	}
	if caller != a.Seller {
		return ErrUnauthorized
	}
	if a.HasBids() {
		return ErrHasBids
	}
	a.Status = StatusCancelled
	if err := e.state.AuctionPut(a); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(a, e.nowFn()))
	return nil
}
