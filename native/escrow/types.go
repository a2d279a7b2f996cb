package escrow

import "math/big"

// Status is the lifecycle state of an escrow. Creation and funding are a
// single combined step, so a stored escrow is never unfunded.
type Status uint8

const (
	StatusFunded Status = iota + 1
	StatusReleased
	StatusRefunded
	StatusDisputed
	StatusResolved
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusReleased, StatusRefunded, StatusResolved:
		return true
	default:
		return false
	}
}

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	return s >= StatusFunded && s <= StatusResolved
}

func (s Status) String() string {
	switch s {
	case StatusFunded:
		return "funded"
	case StatusReleased:
		return "released"
	case StatusRefunded:
		return "refunded"
	case StatusDisputed:
		return "disputed"
	case StatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Winner identifies the party a disputed escrow was resolved for.
type Winner uint8

const (
	WinnerNone Winner = iota
	WinnerBuyer
	WinnerSeller
)

// Escrow is a two-party conditional hold. Funds sit in the module vault
// from creation until exactly one terminal transition moves them out.
type Escrow struct {
	ID        [32]byte
	Buyer     [20]byte
	Seller    [20]byte
	Asset     string
	Amount    *big.Int
	FeeBps    uint32
	CreatedAt int64
	Expiry    int64
	Status    Status
	Winner    Winner
}

// Clone returns a deep copy so callers can mutate the result safely.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}
