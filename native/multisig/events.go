package multisig

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"agora/core/events"
	"agora/core/types"
)

const (
	EventTypeWalletCreated   = "multisig.wallet_created"
	EventTypeDeposit         = "multisig.deposit"
	EventTypeProposed        = "multisig.proposed"
	EventTypeConfirmed       = "multisig.confirmed"
	EventTypeExecuted        = "multisig.executed"
	EventTypeExecutionFailed = "multisig.execution_failed"
	EventTypeCancelled       = "multisig.cancelled"
	EventTypeOwnerAdded      = "multisig.owner_added"
	EventTypeOwnerRemoved    = "multisig.owner_removed"
)

type walletEvent struct {
	evt *types.Event
}

func (e walletEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e walletEvent) Event() *types.Event { return e.evt }

func walletAttrs(w *Wallet, ts int64) map[string]string {
	attrs := map[string]string{"timestamp": strconv.FormatInt(ts, 10)}
	if w == nil {
		return attrs
	}
	attrs["wallet"] = hex.EncodeToString(w.ID[:])
	attrs["threshold"] = strconv.FormatUint(uint64(w.Threshold), 10)
	attrs["owners"] = strconv.Itoa(len(w.Owners))
	return attrs
}

func txAttrs(attrs map[string]string, tx *PendingTransaction) map[string]string {
	if tx == nil {
		return attrs
	}
	attrs["tx"] = strconv.FormatUint(tx.ID, 10)
	attrs["destination"] = hex.EncodeToString(tx.Destination[:])
	if tx.Value != nil {
		attrs["value"] = tx.Value.String()
	}
	attrs["confirmations"] = strconv.Itoa(len(tx.Confirmed))
	return attrs
}

// NewWalletCreatedEvent is emitted when a wallet is created.
func NewWalletCreatedEvent(w *Wallet, ts int64) events.Event {
	return walletEvent{evt: &types.Event{Type: EventTypeWalletCreated, Attributes: walletAttrs(w, ts)}}
}

// NewDepositEvent is emitted when funds enter wallet custody.
func NewDepositEvent(w *Wallet, from [20]byte, amount *big.Int, ts int64) events.Event {
	attrs := walletAttrs(w, ts)
	attrs["from"] = hex.EncodeToString(from[:])
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return walletEvent{evt: &types.Event{Type: EventTypeDeposit, Attributes: attrs}}
}

// NewProposedEvent is emitted when a transaction is proposed.
func NewProposedEvent(w *Wallet, tx *PendingTransaction, ts int64) events.Event {
	return walletEvent{evt: &types.Event{Type: EventTypeProposed, Attributes: txAttrs(walletAttrs(w, ts), tx)}}
}

// NewConfirmedEvent is emitted when an owner confirms a transaction.
func NewConfirmedEvent(w *Wallet, tx *PendingTransaction, owner [20]byte, ts int64) events.Event {
	attrs := txAttrs(walletAttrs(w, ts), tx)
	attrs["owner"] = hex.EncodeToString(owner[:])
	return walletEvent{evt: &types.Event{Type: EventTypeConfirmed, Attributes: attrs}}
}

// NewExecutedEvent is emitted when a transaction settles.
func NewExecutedEvent(w *Wallet, tx *PendingTransaction, ts int64) events.Event {
	return walletEvent{evt: &types.Event{Type: EventTypeExecuted, Attributes: txAttrs(walletAttrs(w, ts), tx)}}
}

// NewExecutionFailedEvent is emitted when the external call reverts
// after the debit has settled.
func NewExecutionFailedEvent(w *Wallet, tx *PendingTransaction, callErr error, ts int64) events.Event {
	attrs := txAttrs(walletAttrs(w, ts), tx)
	if callErr != nil {
		attrs["error"] = callErr.Error()
	}
	return walletEvent{evt: &types.Event{Type: EventTypeExecutionFailed, Attributes: attrs}}
}

// NewCancelledEvent is emitted when a pending transaction is cancelled.
func NewCancelledEvent(w *Wallet, tx *PendingTransaction, ts int64) events.Event {
	return walletEvent{evt: &types.Event{Type: EventTypeCancelled, Attributes: txAttrs(walletAttrs(w, ts), tx)}}
}

// NewOwnerAddedEvent is emitted when the owner set grows.
func NewOwnerAddedEvent(w *Wallet, owner [20]byte, ts int64) events.Event {
	attrs := walletAttrs(w, ts)
	attrs["ownerAdded"] = hex.EncodeToString(owner[:])
	return walletEvent{evt: &types.Event{Type: EventTypeOwnerAdded, Attributes: attrs}}
}

// NewOwnerRemovedEvent is emitted when the owner set shrinks.
func NewOwnerRemovedEvent(w *Wallet, owner [20]byte, ts int64) events.Event {
	attrs := walletAttrs(w, ts)
	attrs["ownerRemoved"] = hex.EncodeToString(owner[:])
	return walletEvent{evt: &types.Event{Type: EventTypeOwnerRemoved, Attributes: attrs}}
}
