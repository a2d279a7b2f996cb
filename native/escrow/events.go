package escrow

import (
	"encoding/hex"
	"strconv"

	"agora/core/events"
	"agora/core/types"
)

const (
	EventTypeCreated  = "escrow.created"
	EventTypeReleased = "escrow.released"
	EventTypeRefunded = "escrow.refunded"
	EventTypeDisputed = "escrow.disputed"
	EventTypeResolved = "escrow.resolved"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

func newEscrowEvent(eventType string, esc *Escrow, ts int64) events.Event {
	if esc == nil {
		return escrowEvent{}
	}
	attrs := map[string]string{
		"id":        hex.EncodeToString(esc.ID[:]),
		"buyer":     hex.EncodeToString(esc.Buyer[:]),
		"seller":    hex.EncodeToString(esc.Seller[:]),
		"asset":     esc.Asset,
		"status":    esc.Status.String(),
		"expiry":    strconv.FormatInt(esc.Expiry, 10),
		"timestamp": strconv.FormatInt(ts, 10),
	}
	if esc.Amount != nil {
		attrs["amount"] = esc.Amount.String()
	}
	if esc.Winner == WinnerBuyer {
		attrs["winner"] = "buyer"
	} else if esc.Winner == WinnerSeller {
		attrs["winner"] = "seller"
	}
	return escrowEvent{evt: &types.Event{Type: eventType, Attributes: attrs}}
}

// NewCreatedEvent is emitted when an escrow is created and funded.
func NewCreatedEvent(e *Escrow, ts int64) events.Event { return newEscrowEvent(EventTypeCreated, e, ts) }

// NewReleasedEvent is emitted when escrowed funds settle to the seller.
func NewReleasedEvent(e *Escrow, ts int64) events.Event {
	return newEscrowEvent(EventTypeReleased, e, ts)
}

// NewRefundedEvent is emitted when escrowed funds return to the buyer.
func NewRefundedEvent(e *Escrow, ts int64) events.Event {
	return newEscrowEvent(EventTypeRefunded, e, ts)
}

// NewDisputedEvent is emitted when either party raises a dispute.
func NewDisputedEvent(e *Escrow, ts int64) events.Event {
	return newEscrowEvent(EventTypeDisputed, e, ts)
}

// NewResolvedEvent is emitted when the arbiter settles a dispute.
func NewResolvedEvent(e *Escrow, ts int64) events.Event {
	return newEscrowEvent(EventTypeResolved, e, ts)
}
