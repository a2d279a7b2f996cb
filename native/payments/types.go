package payments

import "math/big"

// Kind identifies the payment primitive a record was created through.
type Kind uint8

const (
	KindDirect Kind = iota + 1
	KindScheduled
	KindConditional
	KindRecurring
	KindSplit
	KindBatch
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindScheduled:
		return "scheduled"
	case KindConditional:
		return "conditional"
	case KindRecurring:
		return "recurring"
	case KindSplit:
		return "split"
	case KindBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of a payment record.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusCompleted
	StatusCancelled
	StatusFailed
	StatusRefunded
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	case StatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Payment is the persisted record for every payment primitive. Fan-out
// fields are only populated for split and batch kinds; schedule fields
// only for scheduled/recurring children; condition fields only for
// conditional payments.
type Payment struct {
	ID          string
	Kind        Kind
	Status      Status
	Sender      [20]byte
	Recipient   [20]byte
	Recipients  [][20]byte
	Asset       string
	Amount      *big.Int
	Amounts     []*big.Int
	Percentages []uint32
	FeeBps      uint32
	CreatedAt   int64
	ReleaseTime int64
	Deadline    int64
	Verifier    [20]byte
	Condition   *Condition
	Interval    int64
	ParentID    string
}

// Clone returns a deep copy of the payment record.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	}
	if len(p.Recipients) > 0 {
		clone.Recipients = make([][20]byte, len(p.Recipients))
		copy(clone.Recipients, p.Recipients)
	}
	if len(p.Amounts) > 0 {
		clone.Amounts = make([]*big.Int, len(p.Amounts))
		for i, amount := range p.Amounts {
			if amount != nil {
				clone.Amounts[i] = new(big.Int).Set(amount)
			}
		}
	}
	if len(p.Percentages) > 0 {
		clone.Percentages = append([]uint32(nil), p.Percentages...)
	}
	if p.Condition != nil {
		clone.Condition = p.Condition.Clone()
	}
	return &clone
}
