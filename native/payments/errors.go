package payments

import "errors"

var (
	ErrNilState           = errors.New("payments: state not configured")
	ErrNilLedger          = errors.New("payments: ledger not configured")
	ErrNotFound           = errors.New("payments: payment not found")
	ErrInvalidAmount      = errors.New("payments: amount must be positive")
	ErrInvalidState       = errors.New("payments: operation invalid for current status")
	ErrUnauthorized       = errors.New("payments: unauthorized caller")
	ErrNotDue             = errors.New("payments: release time not reached")
	ErrDeadlinePassed     = errors.New("payments: deadline passed")
	ErrDeadlineNotReached = errors.New("payments: deadline not reached")
	ErrInvalidSchedule    = errors.New("payments: release time must be in the future")
	ErrInvalidCondition   = errors.New("payments: malformed release condition")
	ErrProofRejected      = errors.New("payments: proof does not satisfy condition")
	ErrInvalidFanOut      = errors.New("payments: recipients and shares must align and be non-empty")
	ErrInvalidPercentages = errors.New("payments: percentages must sum to exactly 100")
	ErrBatchOverFunded    = errors.New("payments: amounts exceed funded total")
	ErrInvalidInterval    = errors.New("payments: interval must be positive")
	ErrInvalidCount       = errors.New("payments: installment count must be positive")
)
