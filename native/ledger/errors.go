package ledger

import "errors"

var (
	ErrNilState           = errors.New("ledger: state not configured")
	ErrInvalidAmount      = errors.New("ledger: amount must be positive")
	ErrInvalidAsset       = errors.New("ledger: invalid asset symbol")
	ErrInsufficientFunds = errors.New("ledger: insufficient balance")
	ErrFeeCollectorUnset = errors.New("ledger: fee collector not configured")
)
