package escrow

import "errors"

var (
	ErrNilState       = errors.New("escrow: state not configured")
	ErrNilLedger      = errors.New("escrow: ledger not configured")
	ErrArbiterUnset   = errors.New("escrow: arbiter not configured")
	ErrNotFound       = errors.New("escrow: escrow not found")
	ErrExists         = errors.New("escrow: identifier already exists")
	ErrInvalidAmount  = errors.New("escrow: amount must be positive")
	ErrInvalidParties = errors.New("escrow: buyer and seller must differ")
	ErrInvalidExpiry  = errors.New("escrow: expiry before creation time")
	ErrInvalidState   = errors.New("escrow: operation invalid for current status")
	ErrUnauthorized   = errors.New("escrow: unauthorized caller")
	ErrExpired        = errors.New("escrow: deadline passed")
	ErrNotExpired     = errors.New("escrow: deadline not reached")
	ErrInvalidWinner  = errors.New("escrow: winner must be buyer or seller")
)
