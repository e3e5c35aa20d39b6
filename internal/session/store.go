package session

import (
	"context"
	"time"
)

// Record is the unit of persisted session state. Data is opaque to every
// store; Expiry is an absolute instant after which the record is dead.
type Record struct {
	ID     ID
	Data   []byte
	Expiry time.Time
}

// Expired reports whether the record is dead at the given instant.
func (r *Record) Expired(now time.Time) bool {
	return !r.Expiry.After(now)
}

// Store is the capability the session middleware consumes.
//
// Load returns (nil, nil) when no live record exists for id. Expired rows
// that have not been purged yet are reported as absent too.
type Store interface {
	// Create persists r under an identifier that is not present in the
	// store. r.ID is replaced when the supplied one is already taken.
	Create(ctx context.Context, r *Record) error
	// Save inserts r or overwrites the data and expiry of an existing row.
	Save(ctx context.Context, r *Record) error
	Load(ctx context.Context, id ID) (*Record, error)
	// Delete removes the record. Deleting a missing id is not an error.
	Delete(ctx context.Context, id ID) error
}

// ExpiredDeleter is implemented by stores that need an out-of-band sweep to
// remove dead records.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) error
}
