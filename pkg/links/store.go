package links

import "context"

// Store is the uniform operation surface of a benchmarked backend.
//
// Patterns are slices of length 0, 1 or 3 laid out as (identity, source,
// target); a position holding Any[T]() matches every value. Implementations
// never mutate a pattern.
//
// Stores are not safe for concurrent use unless stated otherwise: a
// benchmark session drives its store from a single goroutine.
type Store[T Unsigned] interface {
	// Create stores a new link with the given endpoints and returns it.
	Create(ctx context.Context, source, target T) (Link[T], error)

	// CreatePoint stores a new link whose endpoints are its own identity.
	CreatePoint(ctx context.Context) (Link[T], error)

	// Each calls visit for every link matching pattern until visit returns
	// Break. The returned Flow is Break if the traversal was stopped early.
	Each(ctx context.Context, pattern []T, visit func(Link[T]) Flow) (Flow, error)

	// Count returns the number of links matching pattern.
	Count(ctx context.Context, pattern []T) (uint64, error)

	// Get returns the link with the given identity. The boolean is false
	// when it does not exist.
	Get(ctx context.Context, id T) (Link[T], bool, error)

	// Update replaces the endpoints of an existing link and returns the
	// link before and after the change. Missing links yield a NotFoundError.
	Update(ctx context.Context, id, source, target T) (before, after Link[T], err error)

	// Delete removes an existing link and returns its last state. Missing
	// links yield a NotFoundError.
	Delete(ctx context.Context, id T) (Link[T], error)

	// Close releases the resources held by the store.
	Close() error
}

// Collect returns all links matching pattern in traversal order.
func Collect[T Unsigned](ctx context.Context, s Store[T], pattern []T) ([]Link[T], error) {
	var out []Link[T]
	_, err := s.Each(ctx, pattern, func(l Link[T]) Flow {
		out = append(out, l)
		return Continue
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EachAll visits every link in s.
func EachAll[T Unsigned](ctx context.Context, s Store[T], visit func(Link[T]) Flow) (Flow, error) {
	return s.Each(ctx, nil, visit)
}

// Pattern builds a full (identity, source, target) pattern.
func Pattern[T Unsigned](id, source, target T) []T {
	return []T{id, source, target}
}
