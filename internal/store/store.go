// Package store provides the origin-scoped persistent key/value storage that
// the main window and its popups share, plus typed accessors for the
// session keys kept in it.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("key not found")

// ErrUnchanged may be returned by an UpdateFunc to leave the key untouched.
var ErrUnchanged = errors.New("unchanged")

// Entry is a stored key with its bookkeeping.
type Entry struct {
	Origin    string    `json:"origin"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateFunc receives the current value (ok=false when absent) and returns
// the value to write. Returning remove=true deletes the key instead.
type UpdateFunc func(old string, ok bool) (value string, remove bool, err error)

// Store is durable storage scoped to one browser origin. Every window of
// the origin opens the same Store.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes key, replacing any prior value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Update performs a read-modify-write of key as one transaction.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// Entries lists every key of the origin.
	Entries(ctx context.Context) ([]Entry, error)

	// Close closes the store.
	Close() error
}
