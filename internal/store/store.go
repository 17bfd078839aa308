// Package store persists the booking Map. Every implementation loads and
// saves the whole document; there is no partial update.
package store

import (
	"context"
	"errors"

	"github.com/dyluth/rota/pkg/booking"
)

var (
	// ErrUnavailable means the backing resource could not be reached or written.
	ErrUnavailable = errors.New("booking store unavailable")

	// ErrMalformed means the backing resource exists but could not be parsed.
	ErrMalformed = errors.New("persisted bookings are malformed")

	// ErrUnrepresentable means the backend cannot store the Map so that it
	// loads back unchanged. Nothing was written.
	ErrUnrepresentable = errors.New("bookings cannot be stored by this backend")
)

// Store loads and saves the full booking Map.
//
// Load returns an empty Map when nothing has been persisted yet.
// Save overwrites the persisted Map entirely and is atomic per call: a
// concurrent Load sees either the previous or the new Map, never a mix.
type Store interface {
	Load(ctx context.Context) (booking.Map, error)
	Save(ctx context.Context, m booking.Map) error
	Close() error
}

// Pinger is implemented by stores that can report backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IsUnavailable reports whether err came from an unreachable backend.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsMalformed reports whether err came from unparseable persisted data.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}
