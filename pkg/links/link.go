// Package links defines the link record shared by every benchmarked backend
// and the operation surface each backend must expose.
//
// A link is a (identity, source, target) triple of unsigned identifiers.
// Identity 0 is never assigned; 0 used as an endpoint means "none". The
// maximum value of the identifier type is reserved as the wildcard used in
// query patterns, see Any.
package links

import "fmt"

// Unsigned is the set of identifier types a link may be parameterised with.
type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Link is an immutable value describing one stored link.
type Link[T Unsigned] struct {
	ID     T
	Source T
	Target T
}

// Any returns the wildcard sentinel for T. It matches every value in a
// pattern position and is never a valid identity.
func Any[T Unsigned]() T {
	return ^T(0)
}

// Point returns the point link for id: a link whose endpoints are itself.
func Point[T Unsigned](id T) Link[T] {
	return Link[T]{ID: id, Source: id, Target: id}
}

// IsPoint reports whether both endpoints equal the identity.
func (l Link[T]) IsPoint() bool {
	return l.ID == l.Source && l.ID == l.Target
}

// IsZero reports whether l is the zero link (no identity).
func (l Link[T]) IsZero() bool {
	return l.ID == 0 && l.Source == 0 && l.Target == 0
}

func (l Link[T]) String() string {
	return fmt.Sprintf("(%d: %d->%d)", uint64(l.ID), uint64(l.Source), uint64(l.Target))
}

// Flow tells a traversal whether to keep going.
type Flow int

const (
	// Continue asks for the next match.
	Continue Flow = iota
	// Break stops the traversal; no further matches are retrieved.
	Break
)

func (f Flow) String() string {
	if f == Break {
		return "break"
	}
	return "continue"
}
