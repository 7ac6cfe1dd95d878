package port

import (
	"context"
	"errors"
)

// ErrVersionConflict is returned by SaveIfVersion when the stored version no
// longer matches the expected one.
var ErrVersionConflict = errors.New("state version conflict")

// StateItem is a stored blob together with its store-assigned version.
type StateItem struct {
	Key     string
	Value   []byte
	Version string
}

// StateStore is a flat key-value store with no query capability.
type StateStore interface {
	// Get returns nil, nil when the key does not exist
	Get(ctx context.Context, key string) (*StateItem, error)

	// Save writes unconditionally
	Save(ctx context.Context, key string, value []byte) error

	// SaveIfVersion writes only if the stored version equals version;
	// an empty version means the key must not exist yet
	SaveIfVersion(ctx context.Context, key string, value []byte, version string) error

	// Delete is a no-op for missing keys
	Delete(ctx context.Context, key string) error
}
