package domain

import (
	"context"
	"time"
)

// UpdateFunc receives the current snapshot and returns its replacement.
// Returning an error leaves the stored snapshot untouched.
type UpdateFunc func(current Snapshot) (Snapshot, error)

type SessionRepository interface {
	Create(ctx context.Context, snapshot Snapshot) error
	Get(ctx context.Context, id string) (Snapshot, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (Snapshot, error)
	DeleteIdleSince(ctx context.Context, cutoff time.Time) ([]string, error)
}
