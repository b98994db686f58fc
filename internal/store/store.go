// Package store persists small values such as the query index in an
// embedded key-value database.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Backend names a storage engine
type Backend string

const (
	BackendBolt   Backend = "bolt"
	BackendBadger Backend = "badger"
)

var (
	// ErrUnknownBackend indicates a backend name Open does not support.
	ErrUnknownBackend = errors.New("unknown store backend")

	// ErrClosed indicates use of a closed store.
	ErrClosed = errors.New("store is closed")
)

// Store is a closable key-value store
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open opens the backend under dir, creating the directory when missing
func Open(backend Backend, dir string, logger *slog.Logger) (Store, error) {
	switch backend {
	case BackendBolt, "":
		return NewBolt(dir)
	case BackendBadger:
		return NewBadger(dir, false, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
