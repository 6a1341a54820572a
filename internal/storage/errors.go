package storage

import "errors"

var (
	// ErrNotFound is returned by Get for keys that were never set or were removed.
	ErrNotFound = errors.New("key not found")
	// ErrInvalidKey is returned for keys a backend cannot store.
	ErrInvalidKey = errors.New("invalid key")
)
