package payments

import (
	"math/big"
	"time"

	"agora/core/events"
	"agora/native/common"
	"agora/native/ledger"
)

// ModuleName identifies the payments module for pause checks and vault
// derivation.
const ModuleName = "payments"

type engineState interface {
	PaymentPut(*Payment) error
	PaymentGet(id string) (*Payment, bool, error)
}

// Engine implements the direct, scheduled, conditional, recurring,
// split and batch payment primitives over the account ledger. Held
// funds live in the module vault until executed, fulfilled, refunded or
// cancelled; no operation applies partial effects.
type Engine struct {
	state    engineState
	ledger   *ledger.Ledger
	emitter  events.Emitter
	pauses   common.PauseView
	presence PresenceView
	ids      IDGenerator
	vault    [20]byte
	nowFn    func() int64
}

// NewEngine creates a payments engine with UUID ids and a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		ids:     NewUUIDGenerator(),
		vault:   ledger.ModuleVault(ModuleName),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the payment storage backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the account ledger used for settlement.
func (e *Engine) SetLedger(l *ledger.Ledger) { e.ledger = l }

// SetPresenceView configures the view backing presence conditions.
func (e *Engine) SetPresenceView(view PresenceView) { e.presence = view }

// SetPauses configures the pause view consulted before any transition.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetIDGenerator overrides the id source, primarily for tests.
func (e *Engine) SetIDGenerator(ids IDGenerator) {
	if ids == nil {
		e.ids = NewUUIDGenerator()
		return
	}
	e.ids = ids
}

// SetNowFunc overrides the time source, primarily for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a
// no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.ledger == nil {
		return ErrNilLedger
	}
	return common.Guard(e.pauses, ModuleName)
}

func (e *Engine) load(id string) (*Payment, error) {
	p, ok, err := e.state.PaymentGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// Get returns the stored payment record for id.
func (e *Engine) Get(id string) (*Payment, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	p, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func validAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

// Direct settles a fee-skimmed transfer immediately and records it as
// completed.
func (e *Engine) Direct(sender, recipient [20]byte, asset string, amount *big.Int, feeBps uint32) (*Payment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	normalized, err := ledger.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	if _, err := e.ledger.TransferWithFee(sender, recipient, normalized, amount, feeBps); err != nil {
		return nil, err
	}
	p := &Payment{
		ID:        e.ids.NewID(),
		Kind:      KindDirect,
		Status:    StatusCompleted,
		Sender:    sender,
		Recipient: recipient,
		Asset:     normalized,
		Amount:    new(big.Int).Set(amount),
		FeeBps:    feeBps,
		CreatedAt: e.nowFn(),
	}
	if err := e.state.PaymentPut(p); err != nil {
		return nil, err
	}
	e.emit(NewCompletedEvent(p, e.nowFn()))
	return p.Clone(), nil
}

// Scheduled holds the amount in the module vault until the release time.
func (e *Engine) Scheduled(sender, recipient [20]byte, asset string, amount *big.Int, feeBps uint32, releaseTime int64) (*Payment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	normalized, err := ledger.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	now := e.nowFn()
	if releaseTime <= now {
		return nil, ErrInvalidSchedule
	}
	if err := e.ledger.Transfer(sender, e.vault, normalized, amount); err != nil {
		return nil, err
	}
	p := &Payment{
		ID:          e.ids.NewID(),
		Kind:        KindScheduled,
		Status:      StatusPending,
		Sender:      sender,
		Recipient:   recipient,
		Asset:       normalized,
		Amount:      new(big.Int).Set(amount),
		FeeBps:      feeBps,
		CreatedAt:   now,
		ReleaseTime: releaseTime,
	}
	if err := e.state.PaymentPut(p); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(p, e.nowFn()))
	return p.Clone(), nil
}

// Execute settles a pending scheduled payment once its release time has
// been reached. Succeeds at most once.
func (e *Engine) Execute(id string) error {
	if err := e.ready(); err != nil {
		return err
	}
	p, err := e.load(id)
	if err != nil {
		return err
	}
	if p.Kind != KindScheduled {
		return ErrInvalidState
	}
	if p.Status != StatusPending {
		return ErrInvalidState
	}
	if e.nowFn() < p.ReleaseTime {
		return ErrNotDue
	}
	if _, err := e.ledger.TransferWithFee(e.vault, p.Recipient, p.Asset, p.Amount, p.FeeBps); err != nil {
		return err
	}
	p.Status = StatusCompleted
	if err := e.state.PaymentPut(p); err != nil {
		return err
	}
	e.emit(NewCompletedEvent(p, e.nowFn()))
	return nil
}

// Cancel voids a pending scheduled payment and refunds the sender in
// full. Sender only.
func (e *Engine) Cancel(id string, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	p, err := e.load(id)
	if err != nil {
		return err
	}
	if p.Kind != KindScheduled && p.Kind != KindConditional {
		return ErrInvalidState
	}
	if p.Status != StatusPending {
		return ErrInvalidState
	}
	if caller != p.Sender {
		return ErrUnauthorized
	}
	if err := e.ledger.Transfer(e.vault, p.Sender, p.Asset, p.Amount); err != nil {
		return err
	}
	p.Status = StatusCancelled
	if err := e.state.PaymentPut(p); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(p, e.nowFn()))
	return nil
}

// Conditional holds the amount until the verifier fulfills the attached
// condition or the deadline passes.
func (e *Engine) Conditional(sender, recipient [20]byte, asset string, amount *big.Int, feeBps uint32, verifier [20]byte, condition *Condition, deadline int64) (*Payment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	normalized, err := ledger.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	if condition == nil || !condition.Valid() {
		return nil, ErrInvalidCondition
	}
	now := e.nowFn()
	if deadline <= now {
		return nil, ErrInvalidSchedule
	}
	if err := e.ledger.Transfer(sender, e.vault, normalized, amount); err != nil {
		return nil, err
	}
	p := &Payment{
		ID:        e.ids.NewID(),
		Kind:      KindConditional,
		Status:    StatusPending,
		Sender:    sender,
		Recipient: recipient,
		Asset:     normalized,
		Amount:    new(big.Int).Set(amount),
		FeeBps:    feeBps,
		CreatedAt: now,
		Deadline:  deadline,
		Verifier:  verifier,
		Condition: condition.Clone(),
	}
	if err := e.state.PaymentPut(p); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(p, e.nowFn()))
	return p.Clone(), nil
}

func (e *Engine) checkCondition(c *Condition, proof Proof, now int64) error {
	switch c.Kind {
	case ConditionTime:
		if now < c.UnlockTime {
			return ErrProofRejected
		}
	case ConditionSignatures:
		if proof.Signatures < c.MinSignatures {
			return ErrProofRejected
		}
	case ConditionPresence:
		if e.presence == nil {
			return ErrInvalidCondition
		}
		present, err := e.presence.AccountExists(c.Target)
		if err != nil {
			return err
		}
		if !present {
			return ErrProofRejected
		}
	case ConditionCustom:
		// The authenticated verifier vouches for opaque conditions.
	default:
		return ErrInvalidCondition
	}
	return nil
}

// Fulfill settles a conditional payment once the verifier presents a
// proof satisfying the attached condition. Verifier only.
func (e *Engine) Fulfill(id string, caller [20]byte, proof Proof) error {
	if err := e.ready(); err != nil {
		return err
	}
	p, err := e.load(id)
	if err != nil {
		return err
	}
	if p.Kind != KindConditional || p.Status != StatusPending {
		return ErrInvalidState
	}
	if caller != p.Verifier {
		return ErrUnauthorized
	}
	now := e.nowFn()
	if now > p.Deadline {
		return ErrDeadlinePassed
	}
	if err := e.checkCondition(p.Condition, proof, now); err != nil {
		return err
	}
	if _, err := e.ledger.TransferWithFee(e.vault, p.Recipient, p.Asset, p.Amount, p.FeeBps); err != nil {
		return err
	}
	p.Status = StatusCompleted
	if err := e.state.PaymentPut(p); err != nil {
		return err
	}
	e.emit(NewCompletedEvent(p, e.nowFn()))
	return nil
}

// Expire fails a conditional payment whose deadline passed unfulfilled,
// refunding the sender in full. Anyone may invoke it.
func (e *Engine) Expire(id string) error {
	if err := e.ready(); err != nil {
		return err
	}
	p, err := e.load(id)
	if err != nil {
		return err
	}
	if p.Kind != KindConditional || p.Status != StatusPending {
		return ErrInvalidState
	}
	if e.nowFn() <= p.Deadline {
		return ErrDeadlineNotReached
	}
	if err := e.ledger.Transfer(e.vault, p.Sender, p.Asset, p.Amount); err != nil {
		return err
	}
	p.Status = StatusFailed
	if err := e.state.PaymentPut(p); err != nil {
		return err
	}
	e.emit(NewFailedEvent(p, e.nowFn()))
	return nil
}

// Recurring settles the first installment immediately, reserves the
// remaining (count-1) installments in the module vault and creates one
// chained scheduled payment per future installment.
func (e *Engine) Recurring(sender, recipient [20]byte, asset string, amount *big.Int, feeBps uint32, interval int64, count uint32) (*Payment, []string, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	normalized, err := ledger.NormalizeAsset(asset)
	if err != nil {
		return nil, nil, err
	}
	if !validAmount(amount) {
		return nil, nil, ErrInvalidAmount
	}
	if interval <= 0 {
		return nil, nil, ErrInvalidInterval
	}
	if count == 0 {
		return nil, nil, ErrInvalidCount
	}
	now := e.nowFn()
	remaining := int64(count) - 1
	// Both the first installment and the reservation must be covered
	// before anything moves.
	total := new(big.Int).Mul(amount, big.NewInt(remaining+1))
	balance, err := e.ledger.Balance(sender, normalized)
	if err != nil {
		return nil, nil, err
	}
	if balance.Cmp(total) < 0 {
		return nil, nil, ledger.ErrInsufficientFunds
	}
	if _, err := e.ledger.TransferWithFee(sender, recipient, normalized, amount, feeBps); err != nil {
		return nil, nil, err
	}
	if remaining > 0 {
		reserve := new(big.Int).Mul(amount, big.NewInt(remaining))
		if err := e.ledger.Transfer(sender, e.vault, normalized, reserve); err != nil {
			return nil, nil, err
		}
	}
	parent := &Payment{
		ID:        e.ids.NewID(),
		Kind:      KindRecurring,
		Status:    StatusCompleted,
		Sender:    sender,
		Recipient: recipient,
		Asset:     normalized,
		Amount:    new(big.Int).Set(amount),
		FeeBps:    feeBps,
		CreatedAt: now,
		Interval:  interval,
	}
	if err := e.state.PaymentPut(parent); err != nil {
		return nil, nil, err
	}
	childIDs := make([]string, 0, remaining)
	for k := int64(1); k <= remaining; k++ {
		child := &Payment{
			ID:          e.ids.NewID(),
			Kind:        KindScheduled,
			Status:      StatusPending,
			Sender:      sender,
			Recipient:   recipient,
			Asset:       normalized,
			Amount:      new(big.Int).Set(amount),
			FeeBps:      feeBps,
			CreatedAt:   now,
			ReleaseTime: now + interval*k,
			ParentID:    parent.ID,
		}
		if err := e.state.PaymentPut(child); err != nil {
			return nil, nil, err
		}
		childIDs = append(childIDs, child.ID)
	}
	e.emit(NewRecurringEvent(parent, len(childIDs), e.nowFn()))
	return parent.Clone(), childIDs, nil
}

// Split fans the amount out to recipients by whole percentages summing
// to exactly 100, fee-skimming each share independently. Settles
// immediately.
func (e *Engine) Split(sender [20]byte, recipients [][20]byte, percentages []uint32, asset string, amount *big.Int, feeBps uint32) (*Payment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	normalized, err := ledger.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	if len(recipients) == 0 || len(recipients) != len(percentages) {
		return nil, ErrInvalidFanOut
	}
	var sum uint32
	for _, pct := range percentages {
		if pct == 0 {
			return nil, ErrInvalidPercentages
		}
		sum += pct
	}
	if sum != 100 {
		return nil, ErrInvalidPercentages
	}
	balance, err := e.ledger.Balance(sender, normalized)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, ledger.ErrInsufficientFunds
	}
	shares := make([]*big.Int, len(recipients))
	for i, pct := range percentages {
		share := new(big.Int).Mul(amount, big.NewInt(int64(pct)))
		shares[i] = share.Div(share, big.NewInt(100))
	}
	for i, recipient := range recipients {
		if shares[i].Sign() == 0 {
			continue
		}
		if _, err := e.ledger.TransferWithFee(sender, recipient, normalized, shares[i], feeBps); err != nil {
			return nil, err
		}
	}
	p := &Payment{
		ID:          e.ids.NewID(),
		Kind:        KindSplit,
		Status:      StatusCompleted,
		Sender:      sender,
		Recipients:  append([][20]byte(nil), recipients...),
		Percentages: append([]uint32(nil), percentages...),
		Asset:       normalized,
		Amount:      new(big.Int).Set(amount),
		Amounts:     shares,
		FeeBps:      feeBps,
		CreatedAt:   e.nowFn(),
	}
	if err := e.state.PaymentPut(p); err != nil {
		return nil, err
	}
	e.emit(NewCompletedEvent(p, e.nowFn()))
	return p.Clone(), nil
}

// Batch pays each recipient its own amount out of a funded total,
// fee-skimming each independently and refunding the unspent excess to
// the sender. Settles immediately.
func (e *Engine) Batch(sender [20]byte, recipients [][20]byte, amounts []*big.Int, asset string, funded *big.Int, feeBps uint32) (*Payment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	normalized, err := ledger.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	if !validAmount(funded) {
		return nil, ErrInvalidAmount
	}
	if len(recipients) == 0 || len(recipients) != len(amounts) {
		return nil, ErrInvalidFanOut
	}
	total := big.NewInt(0)
	owned := make([]*big.Int, len(amounts))
	for i, amount := range amounts {
		if !validAmount(amount) {
			return nil, ErrInvalidAmount
		}
		owned[i] = new(big.Int).Set(amount)
		total.Add(total, amount)
	}
	if total.Cmp(funded) > 0 {
		return nil, ErrBatchOverFunded
	}
	if err := e.ledger.Transfer(sender, e.vault, normalized, funded); err != nil {
		return nil, err
	}
	for i, recipient := range recipients {
		if _, err := e.ledger.TransferWithFee(e.vault, recipient, normalized, amounts[i], feeBps); err != nil {
			return nil, err
		}
	}
	if excess := new(big.Int).Sub(funded, total); excess.Sign() > 0 {
		if err := e.ledger.Transfer(e.vault, sender, normalized, excess); err != nil {
			return nil, err
		}
	}
	p := &Payment{
		ID:         e.ids.NewID(),
		Kind:       KindBatch,
		Status:     StatusCompleted,
		Sender:     sender,
		Recipients: append([][20]byte(nil), recipients...),
		Asset:      normalized,
		Amount:     new(big.Int).Set(funded),
		Amounts:    owned,
		FeeBps:     feeBps,
		CreatedAt:  e.nowFn(),
	}
	if err := e.state.PaymentPut(p); err != nil {
		return nil, err
	}
	e.emit(NewCompletedEvent(p, e.nowFn()))
	return p.Clone(), nil
}
