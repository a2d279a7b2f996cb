package fees

import "math/big"

// DefaultMaxBps caps the platform fee at 10% unless configured otherwise.
const DefaultMaxBps uint32 = 1_000

// BpsDenominator is the basis-point scale (10000 = 100%).
const BpsDenominator int64 = 10_000

// Policy bounds the fee rate applied to settlements. The zero value
// behaves like the default policy.
type Policy struct {
	MaxBps uint32
}

// NewPolicy returns a policy capped at maxBps, falling back to
// DefaultMaxBps when maxBps is zero.
func NewPolicy(maxBps uint32) Policy {
	if maxBps == 0 {
		maxBps = DefaultMaxBps
	}
	return Policy{MaxBps: maxBps}
}

// Clamp bounds the requested rate to the policy maximum.
func (p Policy) Clamp(bps uint32) uint32 {
	max := p.MaxBps
	if max == 0 {
		max = DefaultMaxBps
	}
	if bps > max {
		return max
	}
	return bps
}

// Compute returns floor(amount * bps / 10000) with bps clamped to the
// policy maximum. Nil or non-positive amounts yield a zero fee.
func (p Policy) Compute(amount *big.Int, bps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	clamped := p.Clamp(bps)
	if clamped == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(clamped)))
	return fee.Div(fee, big.NewInt(BpsDenominator))
}

// ApplyInput captures the context required to evaluate the fee obligation
// for a settlement.
type ApplyInput struct {
	Gross *big.Int
	Bps   uint32
}

// ApplyResult summarises the computed fee and resulting net payout.
type ApplyResult struct {
	Fee *big.Int
	Net *big.Int
}

// Apply evaluates the policy against the gross amount and returns the
// fee and net split. The fee never exceeds the gross amount; the two
// always sum back to the gross (conservation).
func (p Policy) Apply(input ApplyInput) ApplyResult {
	result := ApplyResult{Fee: big.NewInt(0), Net: big.NewInt(0)}
	if input.Gross == nil || input.Gross.Sign() <= 0 {
		return result
	}
	result.Net = new(big.Int).Set(input.Gross)
	fee := p.Compute(input.Gross, input.Bps)
	if fee.Sign() <= 0 {
		return result
	}
	if fee.Cmp(result.Net) >= 0 {
		result.Fee = new(big.Int).Set(result.Net)
		result.Net = big.NewInt(0)
		return result
	}
	result.Fee = fee
	result.Net = new(big.Int).Sub(result.Net, fee)
	return result
}
