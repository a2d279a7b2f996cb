package payments

import "github.com/google/uuid"

// IDGenerator produces identifiers for payment records. Injected so
// tests can supply deterministic ids.
type IDGenerator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

// NewUUIDGenerator returns the default, UUIDv4-backed generator.
func NewUUIDGenerator() IDGenerator { return uuidGenerator{} }
