// Package identity allocates link identities on the client side for remote
// stores that have no native sequence.
//
// An Allocator is seeded once from the highest identity already stored and
// then hands out strictly increasing values. It is safe for concurrent use;
// every remote client owns its own allocator.
package identity

import (
	"context"
	"fmt"
	"sync/atomic"
)

// First is the first identity handed out by a fresh or reset allocator.
const First uint64 = 1

// MaxQuerier reports the highest identity currently stored, 0 when empty.
type MaxQuerier interface {
	MaxIdentity(ctx context.Context) (uint64, error)
}

// Allocator is a monotonic identity counter.
type Allocator struct {
	next atomic.Uint64
}

// New returns an allocator starting at First.
func New() *Allocator {
	a := &Allocator{}
	a.next.Store(First)
	return a
}

// Seed sets the counter to one past the highest stored identity. On error
// the counter is left unchanged.
func (a *Allocator) Seed(ctx context.Context, q MaxQuerier) error {
	highest, err := q.MaxIdentity(ctx)
	if err != nil {
		return fmt.Errorf("seed identity allocator: %w", err)
	}
	a.next.Store(highest + 1)
	return nil
}

// Allocate returns the next identity and advances the counter.
func (a *Allocator) Allocate() uint64 {
	return a.next.Add(1) - 1
}

// Release gives id back if it is still the most recent allocation, so that
// a failed create leaves no gap. It reports whether the counter moved back.
func (a *Allocator) Release(id uint64) bool {
	return a.next.CompareAndSwap(id+1, id)
}

// Peek returns the identity the next Allocate will hand out.
func (a *Allocator) Peek() uint64 {
	return a.next.Load()
}

// Reset restarts the counter at First. Only teardown should call it, after
// every stored link has been removed.
func (a *Allocator) Reset() {
	a.next.Store(First)
}
