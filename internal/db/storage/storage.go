// Package storage declares the key-value contract every persistence backend
// of the user directory implements. Values are opaque bytes; callers own the
// encoding.
package storage

import "context"

// Storage is a synchronous key-value store: a Get that follows a successful
// Set in the same process observes the written value.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)

	Set(ctx context.Context, key string, value []byte) error

	Ping(ctx context.Context) error

	Close() error
}
