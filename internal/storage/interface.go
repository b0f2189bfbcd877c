package storage

import "context"

// Storage is a string key-value store holding serialized records under a
// handful of logical keys.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key; a missing key is not an error.
	Remove(ctx context.Context, key string) error

	Init() error
	Close() error
	Backup() error
}
