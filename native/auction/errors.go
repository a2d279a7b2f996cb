package auction

import "errors"

var (
	ErrNilState            = errors.New("auction: state not configured")
	ErrNilLedger           = errors.New("auction: ledger not configured")
	ErrNotFound            = errors.New("auction: auction not found")
	ErrExists              = errors.New("auction: identifier already exists")
	ErrInvalidState        = errors.New("auction: operation invalid for current status")
	ErrUnauthorized        = errors.New("auction: unauthorized caller")
	ErrInvalidPrice        = errors.New("auction: price must be positive")
	ErrInvalidDuration     = errors.New("auction: duration must be positive")
	ErrInvalidIncrement    = errors.New("auction: minimum increment must be positive")
	ErrInvalidReserve      = errors.New("auction: reserve must be positive and below starting price")
	ErrInvalidDecrement    = errors.New("auction: decrement and interval must be positive")
	ErrUnreachableReserve  = errors.New("auction: price cannot reach reserve within duration")
	ErrBiddingClosed       = errors.New("auction: bidding window closed")
	ErrNotEnded            = errors.New("auction: end time not reached")
	ErrSelfBid             = errors.New("auction: seller may not bid")
	ErrBidTooLow           = errors.New("auction: bid below current price plus increment")
	ErrHasBids             = errors.New("auction: cancel requires zero bids")
	ErrInsufficientPayment = errors.New("auction: payment below effective price")
)
