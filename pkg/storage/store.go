package storage

import (
	"context"
	"time"

	"github.com/cuemby/lookout/pkg/types"
)

// Store persists subscriber event rows for later generate(context) calls.
// This is implemented by BoltStore.
type Store interface {
	// Add appends a row for subscriber at event time t and returns its id
	Add(subscriber string, t time.Time, row types.Row) (uint64, error)

	// Generate returns the subscriber's records within bounds, oldest first
	Generate(ctx context.Context, subscriber string, bounds types.Bounds) ([]*types.Record, error)

	// Expire removes every record older than before and returns how many
	Expire(before time.Time) (int, error)

	// Count returns the number of records held for subscriber
	Count(subscriber string) (int, error)

	// Subscribers lists the subscribers that have stored rows
	Subscribers() ([]string, error)

	Close() error
}
