package links

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched (via errors.Is) by every NotFoundError.
	ErrNotFound = errors.New("link not found")

	// ErrInvalidConstraintShape is returned for patterns whose length is not
	// 0, 1 or 3.
	ErrInvalidConstraintShape = errors.New("invalid constraint shape")

	// ErrOutOfRange is matched (via errors.Is) by every RangeError.
	ErrOutOfRange = errors.New("value out of range")
)

// NotFoundError reports an operation addressed to an identity that does
// not exist in the store.
type NotFoundError struct {
	ID uint64
}

// NotFound builds a *NotFoundError for id.
func NotFound[T Unsigned](id T) error {
	return &NotFoundError{ID: uint64(id)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("link %d does not exist", e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold for any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ShapeError wraps ErrInvalidConstraintShape with the offending length.
func ShapeError(length int) error {
	return fmt.Errorf("%w: pattern has %d elements, want 0, 1 or 3", ErrInvalidConstraintShape, length)
}

// RangeError reports a field value larger than a backend can store.
type RangeError struct {
	Field string
	Value uint64
	Max   uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d exceeds the backend maximum %d", e.Field, e.Value, e.Max)
}

// Is makes errors.Is(err, ErrOutOfRange) hold for any RangeError.
func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}
