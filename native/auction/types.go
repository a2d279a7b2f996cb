package auction

import "math/big"

// Status is the lifecycle state of an English auction.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusCancelled
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCancelled:
		return "cancelled"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DutchStatus is the lifecycle state of a Dutch auction.
type DutchStatus uint8

const (
	DutchStatusActive DutchStatus = iota + 1
	DutchStatusCompleted
	DutchStatusEnded
)

func (s DutchStatus) String() string {
	switch s {
	case DutchStatusActive:
		return "active"
	case DutchStatusCompleted:
		return "completed"
	case DutchStatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Auction is an ascending-bid (English) auction. The current high bid is
// held in the module vault; each accepted bid refunds the previous
// holder. CurrentPrice and BidCount are monotonically increasing.
type Auction struct {
	ID            [32]byte
	ItemRef       [32]byte
	Seller        [20]byte
	StartingPrice *big.Int
	CurrentPrice  *big.Int
	HighestBidder [20]byte
	MinIncrement  *big.Int
	ReservePrice  *big.Int
	FeeBps        uint32
	CreatedAt     int64
	EndTime       int64
	BidCount      uint64
	Status        Status
}

// HasBids reports whether at least one bid was accepted.
func (a *Auction) HasBids() bool { return a != nil && a.BidCount > 0 }

// Clone returns a deep copy of the auction.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	clone.StartingPrice = cloneBig(a.StartingPrice)
	clone.CurrentPrice = cloneBig(a.CurrentPrice)
	clone.MinIncrement = cloneBig(a.MinIncrement)
	if a.ReservePrice != nil {
		clone.ReservePrice = new(big.Int).Set(a.ReservePrice)
	}
	return &clone
}

// DutchAuction is a descending-price auction. The effective price is a
// pure function of elapsed time, floored at the reserve.
type DutchAuction struct {
	ID            [32]byte
	ItemRef       [32]byte
	Seller        [20]byte
	Buyer         [20]byte
	StartingPrice *big.Int
	ReservePrice  *big.Int
	Decrement     *big.Int
	Interval      int64
	LastPrice     *big.Int
	LastUpdate    int64
	FeeBps        uint32
	CreatedAt     int64
	EndTime       int64
	Status        DutchStatus
}

// Clone returns a deep copy of the Dutch auction.
func (d *DutchAuction) Clone() *DutchAuction {
	if d == nil {
		return nil
	}
	clone := *d
	clone.StartingPrice = cloneBig(d.StartingPrice)
	clone.ReservePrice = cloneBig(d.ReservePrice)
	clone.Decrement = cloneBig(d.Decrement)
	clone.LastPrice = cloneBig(d.LastPrice)
	return &clone
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
