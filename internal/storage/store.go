// Package storage is the engine's key-value persistence. Every operation is a
// single atomic get, set or delete; no compare-and-swap is offered, so callers
// that read-then-write accept the race that implies.
package storage

import "context"

// Store is an opaque string key-value service.
type Store interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
