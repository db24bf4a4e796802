package state

import (
	"context"
	"errors"
)

// Key namespaces used by the pipeline.
const (
	KeyCredentials = "trends:credentials"
	KeyQuotaLedger = "trends:quota:ledger"
	KeyCachePrefix = "trends:cache:"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("state store is closed")

// Store is the durable key-value storage every persisted piece of the
// pipeline goes through: the registered credential list, the quota ledger
// and the mirrored TTL cache entries.
type Store interface {
	// Get returns the value stored under key; found is false when the key is absent
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error
	Delete(ctx context.Context, key string) error

	// Close releases the underlying resources
	Close() error
}

// Config contains common configuration for all store implementations
type Config struct {
	// Backend is one of "memory", "sqlite" or "dapr"
	Backend string

	// Specific configuration options for different backends
	SQLiteConfig *SQLiteConfig
	DaprConfig   *DaprConfig
}

// SQLiteConfig contains SQLite-specific configuration
type SQLiteConfig struct {
	Path string
}

// DaprConfig contains Dapr-specific configuration
type DaprConfig struct {
	StateStoreName string
	GRPCPort       string
}
