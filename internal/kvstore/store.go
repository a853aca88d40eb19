// Package kvstore provides the durable key/value slots that hold the
// authenticated session between process restarts.
package kvstore

import "context"

// Store is a durable key/value slot store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
