package payments

import (
	"encoding/hex"
	"strconv"

	"agora/core/events"
	"agora/core/types"
)

const (
	EventTypeCreated   = "payments.created"
	EventTypeCompleted = "payments.completed"
	EventTypeCancelled = "payments.cancelled"
	EventTypeFailed    = "payments.failed"
	EventTypeRecurring = "payments.recurring_scheduled"
)

type paymentEvent struct {
	evt *types.Event
}

func (e paymentEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e paymentEvent) Event() *types.Event { return e.evt }

func paymentAttrs(p *Payment, ts int64) map[string]string {
	attrs := map[string]string{"timestamp": strconv.FormatInt(ts, 10)}
	if p == nil {
		return attrs
	}
	attrs["id"] = p.ID
	attrs["kind"] = p.Kind.String()
	attrs["status"] = p.Status.String()
	attrs["sender"] = hex.EncodeToString(p.Sender[:])
	attrs["asset"] = p.Asset
	if p.Amount != nil {
		attrs["amount"] = p.Amount.String()
	}
	if len(p.Recipients) > 0 {
		attrs["recipients"] = strconv.Itoa(len(p.Recipients))
	} else {
		attrs["recipient"] = hex.EncodeToString(p.Recipient[:])
	}
	return attrs
}

// NewCreatedEvent is emitted when a held payment enters the vault.
func NewCreatedEvent(p *Payment, ts int64) events.Event {
	return paymentEvent{evt: &types.Event{Type: EventTypeCreated, Attributes: paymentAttrs(p, ts)}}
}

// NewCompletedEvent is emitted when a payment settles.
func NewCompletedEvent(p *Payment, ts int64) events.Event {
	return paymentEvent{evt: &types.Event{Type: EventTypeCompleted, Attributes: paymentAttrs(p, ts)}}
}

// NewCancelledEvent is emitted when a pending payment is cancelled.
func NewCancelledEvent(p *Payment, ts int64) events.Event {
	return paymentEvent{evt: &types.Event{Type: EventTypeCancelled, Attributes: paymentAttrs(p, ts)}}
}

// NewFailedEvent is emitted when a conditional payment expires.
func NewFailedEvent(p *Payment, ts int64) events.Event {
	return paymentEvent{evt: &types.Event{Type: EventTypeFailed, Attributes: paymentAttrs(p, ts)}}
}

// NewRecurringEvent is emitted when a recurring series is set up.
func NewRecurringEvent(p *Payment, scheduled int, ts int64) events.Event {
	attrs := paymentAttrs(p, ts)
	attrs["installmentsScheduled"] = strconv.Itoa(scheduled)
	return paymentEvent{evt: &types.Event{Type: EventTypeRecurring, Attributes: attrs}}
}
