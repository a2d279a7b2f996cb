package multisig

import "errors"

var (
	ErrNilState            = errors.New("multisig: state not configured")
	ErrNilLedger           = errors.New("multisig: ledger not configured")
	ErrNotFound            = errors.New("multisig: wallet not found")
	ErrTxNotFound          = errors.New("multisig: transaction not found")
	ErrExists              = errors.New("multisig: wallet already exists")
	ErrNoOwners            = errors.New("multisig: owner set must not be empty")
	ErrDuplicateOwner      = errors.New("multisig: duplicate owner")
	ErrInvalidThreshold    = errors.New("multisig: threshold out of range")
	ErrNotOwner            = errors.New("multisig: caller is not an owner")
	ErrInvalidValue        = errors.New("multisig: value must be positive")
	ErrInvalidCommand      = errors.New("multisig: malformed command payload")
	ErrInsufficientFunds   = errors.New("multisig: wallet balance below value")
	ErrAlreadyConfirmed    = errors.New("multisig: owner already confirmed")
	ErrAlreadyExecuted     = errors.New("multisig: transaction already executed")
	ErrCancelled           = errors.New("multisig: transaction cancelled")
	ErrThresholdNotMet     = errors.New("multisig: confirmations below threshold")
	ErrUnauthorized        = errors.New("multisig: unauthorized caller")
	ErrOwnerBelowThreshold = errors.New("multisig: removal would drop owners below threshold")
	ErrExternalCallFailed  = errors.New("multisig: external call failed")
	ErrNoCallTarget        = errors.New("multisig: no call target for opaque command")
)
