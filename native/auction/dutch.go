package auction

import (
	"math/big"

	"agora/native/ledger"
)

// CreateDutch opens a descending-price auction. The schedule must be
// able to reach the reserve within the duration:
// (start-reserve)/decrement * interval <= duration.
func (e *Engine) CreateDutch(itemRef [32]byte, seller [20]byte, startingPrice, reservePrice, decrement *big.Int, interval, duration int64, feeBps uint32, nonce uint64) (*DutchAuction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if startingPrice == nil || startingPrice.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if reservePrice == nil || reservePrice.Sign() <= 0 || reservePrice.Cmp(startingPrice) >= 0 {
		return nil, ErrInvalidReserve
	}
	if decrement == nil || decrement.Sign() <= 0 || interval <= 0 {
		return nil, ErrInvalidDecrement
	}
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	gap := new(big.Int).Sub(startingPrice, reservePrice)
	steps := new(big.Int).Add(gap, new(big.Int).Sub(decrement, big.NewInt(1)))
	steps.Div(steps, decrement)
	required := new(big.Int).Mul(steps, big.NewInt(interval))
	if required.Cmp(big.NewInt(duration)) > 0 {
		return nil, ErrUnreachableReserve
	}
	now := e.nowFn()
	id := AuctionID(itemRef, seller, nonce)
	if _, ok, err := e.state.DutchGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrExists
	}
	d := &DutchAuction{
		ID:            id,
		ItemRef:       itemRef,
		Seller:        seller,
		StartingPrice: new(big.Int).Set(startingPrice),
		ReservePrice:  new(big.Int).Set(reservePrice),
		Decrement:     new(big.Int).Set(decrement),
		Interval:      interval,
		LastPrice:     new(big.Int).Set(startingPrice),
		LastUpdate:    now,
		FeeBps:        feeBps,
		CreatedAt:     now,
		EndTime:       now + duration,
		Status:        DutchStatusActive,
	}
	if err := e.state.DutchPut(d); err != nil {
		return nil, err
	}
	e.emit(NewDutchCreatedEvent(d, now))
	return d.Clone(), nil
}

// EffectivePrice computes the current price of a Dutch auction as a pure
// function of elapsed time, floored at the reserve.
func EffectivePrice(d *DutchAuction, now int64) *big.Int {
	if d == nil || d.LastPrice == nil {
		return big.NewInt(0)
	}
	price := new(big.Int).Set(d.LastPrice)
	if d.Interval <= 0 || d.Decrement == nil || d.Decrement.Sign() <= 0 {
		return price
	}
	elapsed := now - d.LastUpdate
	if elapsed <= 0 {
		return price
	}
	steps := elapsed / d.Interval
	if steps > 0 {
		drop := new(big.Int).Mul(d.Decrement, big.NewInt(steps))
		price.Sub(price, drop)
	}
	if d.ReservePrice != nil && price.Cmp(d.ReservePrice) < 0 {
		price.Set(d.ReservePrice)
	}
	return price
}

// GetDutch returns the stored Dutch auction with its lazily recomputed
// effective price.
func (e *Engine) GetDutch(id [32]byte) (*DutchAuction, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, ErrNilState
	}
	d, ok, err := e.state.DutchGet(id)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrNotFound
	}
	return d.Clone(), EffectivePrice(d, e.nowFn()), nil
}

// Purchase settles the auction at the current effective price. The
// payment offer must cover the price; only the price is debited, so any
// excess never leaves the buyer.
func (e *Engine) Purchase(id [32]byte, buyer [20]byte, payment *big.Int) (*DutchAuction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	d, ok, err := e.state.DutchGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if d.Status != DutchStatusActive {
		return nil, ErrInvalidState
	}
	now := e.nowFn()
	if now >= d.EndTime {
		return nil, ErrBiddingClosed
	}
	if buyer == d.Seller {
		return nil, ErrSelfBid
	}
	price := EffectivePrice(d, now)
	if payment == nil || payment.Cmp(price) < 0 {
		return nil, ErrInsufficientPayment
	}
	if _, err := e.ledger.TransferWithFee(buyer, d.Seller, ledger.AssetNative, price, d.FeeBps); err != nil {
		return nil, err
	}
	d.Buyer = buyer
	d.LastPrice = price
	d.LastUpdate = now
	d.Status = DutchStatusCompleted
	if err := e.state.DutchPut(d); err != nil {
		return nil, err
	}
	e.emit(NewDutchPurchasedEvent(d, now))
	return d.Clone(), nil
}

// EndDutch closes an unsold Dutch auction. The seller may end early;
// anyone may end once the end time has passed. No transfer occurs.
func (e *Engine) EndDutch(id [32]byte, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	d, ok, err := e.state.DutchGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if d.Status != DutchStatusActive {
		return ErrInvalidState
	}
	if caller != d.Seller && e.nowFn() < d.EndTime {
		return ErrNotEnded
	}
	d.Status = DutchStatusEnded
	if err := e.state.DutchPut(d); err != nil {
		return err
	}
	e.emit(NewDutchEndedEvent(d, e.nowFn()))
	return nil
}
