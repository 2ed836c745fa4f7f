package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the partition
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is a set of named, independently versioned partitions.
// Implementations must be safe for concurrent use; concurrent writes to the
// same key are last-write-wins.
type Store interface {
	// Open returns a handle to the named partition. The partition itself is
	// created lazily by the first Put.
	Open(ctx context.Context, name string) (Partition, error)

	// Delete drops the partition and every entry in it.
	// It reports whether the partition existed.
	Delete(ctx context.Context, name string) (bool, error)

	// Names lists existing partitions in sorted order.
	Names(ctx context.Context) ([]string, error)
}

// Partition is a handle to one named key -> response store.
type Partition interface {
	Name() string

	// Get returns a copy of the stored entry or ErrCacheMiss.
	Get(ctx context.Context, key RequestKey) (*Entry, error)

	// Put stores a copy of entry under key, replacing any previous value.
	Put(ctx context.Context, key RequestKey, entry *Entry) error

	// Keys lists the stored keys (RequestKey.String form) in sorted order.
	Keys(ctx context.Context) ([]string, error)
}
