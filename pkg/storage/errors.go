package storage

import "errors"

// Sentinel errors returned by the link engines.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidID     = errors.New("invalid id")
	ErrStorageClosed = errors.New("storage closed")
	ErrCapacity      = errors.New("identity space exhausted")
	ErrCorrupt       = errors.New("corrupt storage region")
)
