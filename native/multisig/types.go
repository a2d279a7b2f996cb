package multisig

import "math/big"

// CommandKind tags the payload attached to a pending transaction so the
// engine can distinguish operations it understands from pass-through
// blobs destined for external code.
type CommandKind uint8

const (
	// CommandTransfer moves the transaction value to the destination with
	// no attached call.
	CommandTransfer CommandKind = iota + 1
	// CommandOpaque forwards a raw byte payload to the destination after
	// the value transfer. Execution of the payload is delegated to the
	// configured call target.
	CommandOpaque
)

// Command is the tagged payload carried by a pending transaction.
type Command struct {
	Kind CommandKind `json:"kind"`
	Data []byte      `json:"data,omitempty"`
}

// Valid reports whether the command is well formed.
func (c Command) Valid() bool {
	switch c.Kind {
	case CommandTransfer:
		return len(c.Data) == 0
	case CommandOpaque:
		return true
	default:
		return false
	}
}

// Wallet is a shared custody account releasing funds only once the
// confirmation threshold is met.
type Wallet struct {
	ID        [32]byte
	Owners    [][20]byte
	Threshold uint32
	Balance   *big.Int
	TxCount   uint64
	CreatedAt int64
}

// IsOwner reports whether addr is in the wallet's owner set.
func (w *Wallet) IsOwner(addr [20]byte) bool {
	if w == nil {
		return false
	}
	for _, owner := range w.Owners {
		if owner == addr {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the wallet.
func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	clone := *w
	clone.Owners = make([][20]byte, len(w.Owners))
	copy(clone.Owners, w.Owners)
	if w.Balance != nil {
		clone.Balance = new(big.Int).Set(w.Balance)
	} else {
		clone.Balance = big.NewInt(0)
	}
	return &clone
}

// PendingTransaction is a proposed release of wallet funds awaiting
// enough owner confirmations. Executable once; cancellable only before
// execution.
type PendingTransaction struct {
	ID          uint64
	WalletID    [32]byte
	Creator     [20]byte
	Destination [20]byte
	Value       *big.Int
	Command     Command
	Confirmed   [][20]byte
	Executed    bool
	Cancelled   bool
	CreatedAt   int64
}

// HasConfirmed reports whether addr already confirmed the transaction.
func (tx *PendingTransaction) HasConfirmed(addr [20]byte) bool {
	if tx == nil {
		return false
	}
	for _, owner := range tx.Confirmed {
		if owner == addr {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the pending transaction.
func (tx *PendingTransaction) Clone() *PendingTransaction {
	if tx == nil {
		return nil
	}
	clone := *tx
	clone.Confirmed = make([][20]byte, len(tx.Confirmed))
	copy(clone.Confirmed, tx.Confirmed)
	clone.Command.Data = append([]byte(nil), tx.Command.Data...)
	if tx.Value != nil {
		clone.Value = new(big.Int).Set(tx.Value)
	} else {
		clone.Value = big.NewInt(0)
	}
	return &clone
}
