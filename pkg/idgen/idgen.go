// Package idgen generates every entity's opaque 128-bit identifier as
// a UUIDv7, so ids stay roughly time-ordered — which the batch
// scheduler's ascending-settlement-time tie-break relies on.
package idgen

import "github.com/google/uuid"

// New returns a fresh UUIDv7.
func New() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the system RNG is broken; fall back
		// to v4 rather than propagating an error into every constructor
		// in the codebase.
		return uuid.New()
	}

	return id
}

// NewString returns New().String().
func NewString() string {
	return New().String()
}
