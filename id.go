package outbox

import "github.com/google/uuid"

// IDGenerator creates event identifiers.
type IDGenerator interface {
	// New returns a new identifier.
	New() (uuid.UUID, error)
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() (uuid.UUID, error)

// New implements IDGenerator.
func (fn IDGeneratorFunc) New() (uuid.UUID, error) {
	return fn()
}

// RandomIDGenerator produces random (version 4) UUIDs.
type RandomIDGenerator struct{}

// New returns a new random UUID.
func (RandomIDGenerator) New() (uuid.UUID, error) {
	return uuid.NewRandom()
}
