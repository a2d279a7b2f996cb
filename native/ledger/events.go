package ledger

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"agora/core/events"
	"agora/core/types"
)

const (
	EventTypeCredited = "ledger.credited"
	EventTypeDebited  = "ledger.debited"
	EventTypeTransfer = "ledger.transfer"
)

type ledgerEvent struct {
	evt *types.Event
}

func (e ledgerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e ledgerEvent) Event() *types.Event { return e.evt }

func amountString(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

// NewCreditedEvent is emitted after a balance credit.
func NewCreditedEvent(addr [20]byte, asset string, amount *big.Int, ts int64) events.Event {
	return ledgerEvent{evt: &types.Event{Type: EventTypeCredited, Attributes: map[string]string{
		"account":   hex.EncodeToString(addr[:]),
		"asset":     asset,
		"amount":    amountString(amount),
		"timestamp": strconv.FormatInt(ts, 10),
	}}}
}

// NewDebitedEvent is emitted after a balance debit.
func NewDebitedEvent(addr [20]byte, asset string, amount *big.Int, ts int64) events.Event {
	return ledgerEvent{evt: &types.Event{Type: EventTypeDebited, Attributes: map[string]string{
		"account":   hex.EncodeToString(addr[:]),
		"asset":     asset,
		"amount":    amountString(amount),
		"timestamp": strconv.FormatInt(ts, 10),
	}}}
}

// NewTransferEvent is emitted after a fee-skimmed transfer settles.
func NewTransferEvent(from, to [20]byte, asset string, amount, fee *big.Int, ts int64) events.Event {
	return ledgerEvent{evt: &types.Event{Type: EventTypeTransfer, Attributes: map[string]string{
		"from":      hex.EncodeToString(from[:]),
		"to":        hex.EncodeToString(to[:]),
		"asset":     asset,
		"amount":    amountString(amount),
		"fee":       amountString(fee),
		"timestamp": strconv.FormatInt(ts, 10),
	}}}
}
