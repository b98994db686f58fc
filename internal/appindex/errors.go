package appindex

import "errors"

var (
	// ErrPlatformRequired indicates New was called without a platform source.
	ErrPlatformRequired = errors.New("platform source is required")

	// ErrStoreRequired indicates New was called without key-value persistence.
	ErrStoreRequired = errors.New("key-value store is required")

	// ErrClosed indicates the service has been closed.
	ErrClosed = errors.New("installed apps index is closed")

	// ErrUnsupportedVersion indicates a persisted query index written in an unknown format.
	ErrUnsupportedVersion = errors.New("unsupported query index version")
)
