package payments

// ConditionKind tags the release condition attached to a conditional
// payment.
type ConditionKind uint8

const (
	// ConditionTime releases once the configured unlock time has passed.
	ConditionTime ConditionKind = iota + 1
	// ConditionSignatures releases once the verifier attests to at least
	// MinSignatures distinct approvals.
	ConditionSignatures
	// ConditionPresence releases once the referenced account is present
	// on the ledger.
	ConditionPresence
	// ConditionCustom delegates the check entirely to the verifier; the
	// proof payload is opaque to the engine.
	ConditionCustom
)

// Condition is the release condition checked when a conditional payment
// is fulfilled.
type Condition struct {
	Kind          ConditionKind `json:"kind"`
	UnlockTime    int64         `json:"unlockTime,omitempty"`
	MinSignatures uint32        `json:"minSignatures,omitempty"`
	Target        [20]byte      `json:"target,omitempty"`
	Spec          []byte        `json:"spec,omitempty"`
}

// Valid reports whether the condition is well formed.
func (c *Condition) Valid() bool {
	if c == nil {
		return false
	}
	switch c.Kind {
	case ConditionTime:
		return c.UnlockTime > 0
	case ConditionSignatures:
		return c.MinSignatures > 0
	case ConditionPresence:
		return c.Target != ([20]byte{})
	case ConditionCustom:
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of the condition.
func (c *Condition) Clone() *Condition {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Spec = append([]byte(nil), c.Spec...)
	return &clone
}

// Proof carries the verifier-supplied evidence for a fulfillment call.
type Proof struct {
	Signatures uint32 `json:"signatures,omitempty"`
	Payload    []byte `json:"payload,omitempty"`
}

// PresenceView reports whether a principal exists on the ledger. Used by
// presence conditions.
type PresenceView interface {
	AccountExists(addr [20]byte) (bool, error)
}
