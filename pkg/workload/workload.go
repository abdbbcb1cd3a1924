// Package workload defines the benchmark groups. Each group is a single body
// shared by every backend, so all backends see the same logical operations in
// the same order.
package workload

import (
	"context"
	"fmt"

	"github.com/orneryd/linkbench/pkg/bench"
	"github.com/orneryd/linkbench/pkg/links"
)

// Group names as they appear in reports.
const (
	Create       = "Create"
	Delete       = "Delete"
	Update       = "Update"
	EachAll      = "Each_All"
	EachIdentity = "Each_Identity"
	EachConcrete = "Each_Concrete"
	EachOutgoing = "Each_Outgoing"
	EachIncoming = "Each_Incoming"
)

// Params sizes a workload. Background must match the session's background
// link count since the bodies address the background links by identity.
type Params struct {
	LinkCount  int
	Background int
}

// DefaultParams returns the sizes used by published results.
func DefaultParams() Params {
	return Params{LinkCount: 1000, Background: bench.DefaultBackground}
}

// Validate reports whether the sizes can drive every group.
func (p Params) Validate() error {
	if p.LinkCount <= 0 {
		return fmt.Errorf("link count must be positive, got %d", p.LinkCount)
	}
	if p.Background <= 0 {
		return fmt.Errorf("background links must be positive, got %d", p.Background)
	}
	return nil
}

// Group is a named benchmark body.
type Group struct {
	Name string
	run  func(ctx context.Context, f *bench.Fork, p Params) error
}

// Body binds the group to p.
func (g Group) Body(p Params) bench.Body {
	return func(ctx context.Context, f *bench.Fork) error {
		return g.run(ctx, f, p)
	}
}

var groups = []Group{
	{Name: Create, run: createPoints},
	{Name: Delete, run: deleteLinks},
	{Name: Update, run: updateLinks},
	{Name: EachAll, run: eachAll},
	{Name: EachIdentity, run: eachBy(func(id uint64) []uint64 { return links.Pattern(id, wildcard, wildcard) })},
	{Name: EachConcrete, run: eachBy(func(id uint64) []uint64 { return links.Pattern(wildcard, id, id) })},
	{Name: EachOutgoing, run: eachBy(func(id uint64) []uint64 { return links.Pattern(wildcard, id, wildcard) })},
	{Name: EachIncoming, run: eachBy(func(id uint64) []uint64 { return links.Pattern(wildcard, wildcard, id) })},
}

// Groups lists every group in report order.
func Groups() []Group {
	out := make([]Group, len(groups))
	copy(out, groups)
	return out
}

// Lookup finds a group by name.
func Lookup(name string) (Group, bool) {
	for _, g := range groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// Names returns the group names in report order.
func Names() []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.Name
	}
	return out
}

var wildcard = links.Any[uint64]()

func discard(links.Link[uint64]) links.Flow { return links.Continue }

func createPoints(ctx context.Context, f *bench.Fork, p Params) error {
	for i := 0; i < p.LinkCount; i++ {
		if err := f.Elapsed(func() error {
			_, err := f.CreatePoint(ctx)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

// deleteLinks creates LinkCount extra links unmeasured and deletes them
// newest first.
func deleteLinks(ctx context.Context, f *bench.Fork, p Params) error {
	ids := make([]uint64, 0, p.LinkCount)
	for i := 0; i < p.LinkCount; i++ {
		l, err := f.CreatePoint(ctx)
		if err != nil {
			return err
		}
		ids = append(ids, l.ID)
	}
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		if err := f.Elapsed(func() error {
			_, err := f.Delete(ctx, id)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

// updateLinks detaches and reattaches the last LinkCount background links.
// Each update is measured on its own.
func updateLinks(ctx context.Context, f *bench.Fork, p Params) error {
	start := 1
	if p.Background > p.LinkCount {
		start = p.Background - p.LinkCount + 1
	}
	for i := start; i <= p.Background; i++ {
		id := uint64(i)
		if err := f.Elapsed(func() error {
			_, _, err := f.Update(ctx, id, 0, 0)
			return err
		}); err != nil {
			return err
		}
		if err := f.Elapsed(func() error {
			_, _, err := f.Update(ctx, id, id, id)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

func eachAll(ctx context.Context, f *bench.Fork, _ Params) error {
	return f.Elapsed(func() error {
		_, err := f.Each(ctx, nil, discard)
		return err
	})
}

func eachBy(pattern func(id uint64) []uint64) func(context.Context, *bench.Fork, Params) error {
	return func(ctx context.Context, f *bench.Fork, p Params) error {
		for i := 1; i <= p.Background; i++ {
			q := pattern(uint64(i))
			if err := f.Elapsed(func() error {
				_, err := f.Each(ctx, q, discard)
				return err
			}); err != nil {
				return err
			}
		}
		return nil
	}
}
