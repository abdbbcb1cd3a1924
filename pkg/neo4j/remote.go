// Package neo4j implements the link operations against a Neo4j-compatible
// database.
//
// Three backends share one implementation and differ only in how a
// statement reaches the server:
//
//   - Client sends every statement as its own auto-committed HTTP request
//     through the hand-built wire client.
//   - Transaction wraps each operation in an explicit HTTP transaction
//     (begin, run, commit).
//   - Bolt uses the official Go driver over the Bolt protocol.
//
// Links are stored as (:Link {id, source, target}) nodes. The server has no
// sequence for link identities, so each backend owns an identity.Allocator
// seeded from the highest stored id when it connects.
package neo4j

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/orneryd/linkbench/pkg/constraint"
	"github.com/orneryd/linkbench/pkg/identity"
	"github.com/orneryd/linkbench/pkg/links"
	"github.com/orneryd/linkbench/pkg/wire"
)

// ErrCapacity is returned when the next identity does not fit T or a
// statement parameter.
var ErrCapacity = errors.New("identity space exhausted")

// session carries the statements of one operation to the server.
type session interface {
	run(ctx context.Context, statement string, params map[string]any) (*wire.Response, error)
	// finish ends the operation; err is the outcome of its statements.
	finish(ctx context.Context, err error) error
}

type opener func(ctx context.Context) (session, error)

// remote implements links.Store and the benchmark lifecycle over sessions.
type remote[T links.Unsigned] struct {
	name string
	open opener
	ids  *identity.Allocator
	log  logr.Logger
}

func newRemote[T links.Unsigned](name string, open opener, log logr.Logger) *remote[T] {
	return &remote[T]{name: name, open: open, ids: identity.New(), log: log}
}

// Name returns the backend display name.
func (r *remote[T]) Name() string { return r.name }

// Allocator exposes the identity allocator.
func (r *remote[T]) Allocator() *identity.Allocator { return r.ids }

func (r *remote[T]) exec(ctx context.Context, fn func(s session) error) error {
	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	return s.finish(ctx, fn(s))
}

func (r *remote[T]) query(ctx context.Context, statement string, params map[string]any) (*wire.Response, error) {
	var resp *wire.Response
	err := r.exec(ctx, func(s session) error {
		var err error
		resp, err = s.run(ctx, statement, params)
		return err
	})
	return resp, err
}

// setup ensures the schema and seeds the allocator. Schema failures are
// logged and ignored: constraints may already exist under other names.
func (r *remote[T]) setup(ctx context.Context) error {
	if err := r.CreateSchema(ctx); err != nil {
		r.log.V(1).Info("schema setup failed", "backend", r.name, "error", err.Error())
	}
	if err := r.ids.Seed(ctx, r); err != nil {
		return err
	}
	r.log.V(1).Info("connected", "backend", r.name, "nextID", r.ids.Peek())
	return nil
}

// CreateSchema creates the unique identity constraint and the endpoint
// indexes if they do not exist. The first failure is returned after all
// statements were attempted.
func (r *remote[T]) CreateSchema(ctx context.Context) error {
	var first error
	for _, stmt := range schemaStatements {
		if _, err := r.query(ctx, stmt, nil); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// MaxIdentity returns the highest stored link identity, 0 when empty.
func (r *remote[T]) MaxIdentity(ctx context.Context) (uint64, error) {
	resp, err := r.query(ctx, stmtMaxID, nil)
	if err != nil {
		return 0, err
	}
	highest, ok := resp.Scalar()
	if !ok {
		return 0, fmt.Errorf("%w: max identity query returned no integer", wire.ErrMalformedResponse)
	}
	if highest < 0 {
		return 0, nil
	}
	return uint64(highest), nil
}

// DropAll deletes every link and restarts identities at 1.
func (r *remote[T]) DropAll(ctx context.Context) error {
	if _, err := r.query(ctx, stmtDropAll, nil); err != nil {
		return err
	}
	r.ids.Reset()
	return nil
}

func (r *remote[T]) allocate() (uint64, error) {
	id := r.ids.Allocate()
	if id >= uint64(links.Any[T]()) || id > constraint.MaxParam {
		r.ids.Release(id)
		return 0, ErrCapacity
	}
	return id, nil
}

// endpoints converts source and target to statement parameters. Nothing is
// sent when either does not fit.
func endpoints[T links.Unsigned](source, target T) (int64, int64, error) {
	s, err := constraint.Param("source", source)
	if err != nil {
		return 0, 0, err
	}
	t, err := constraint.Param("target", target)
	if err != nil {
		return 0, 0, err
	}
	return s, t, nil
}

func (r *remote[T]) Create(ctx context.Context, source, target T) (links.Link[T], error) {
	s, t, err := endpoints(source, target)
	if err != nil {
		return links.Link[T]{}, err
	}
	id, err := r.allocate()
	if err != nil {
		return links.Link[T]{}, err
	}
	params := map[string]any{"id": int64(id), "source": s, "target": t}
	if _, err := r.query(ctx, stmtCreate, params); err != nil {
		r.ids.Release(id)
		return links.Link[T]{}, err
	}
	return links.Link[T]{ID: T(id), Source: source, Target: target}, nil
}

func (r *remote[T]) CreatePoint(ctx context.Context) (links.Link[T], error) {
	id, err := r.allocate()
	if err != nil {
		return links.Link[T]{}, err
	}
	if _, err := r.query(ctx, stmtCreatePoint, map[string]any{"id": int64(id)}); err != nil {
		r.ids.Release(id)
		return links.Link[T]{}, err
	}
	return links.Point(T(id)), nil
}

func (r *remote[T]) Each(ctx context.Context, pattern []T, visit func(links.Link[T]) links.Flow) (links.Flow, error) {
	plan, err := constraint.Compile(pattern, links.Any[T]())
	if err != nil {
		return links.Continue, err
	}
	stmt, params, err := constraint.Cypher(plan, constraint.ProjectLinks)
	if err != nil {
		return links.Continue, err
	}
	resp, err := r.query(ctx, stmt, params)
	if err != nil {
		return links.Continue, err
	}
	for _, row := range resp.Rows() {
		l, err := linkFromRow[T](row)
		if err != nil {
			return links.Continue, err
		}
		if visit(l) == links.Break {
			return links.Break, nil
		}
	}
	return links.Continue, nil
}

func (r *remote[T]) Count(ctx context.Context, pattern []T) (uint64, error) {
	plan, err := constraint.Compile(pattern, links.Any[T]())
	if err != nil {
		return 0, err
	}
	stmt, params, err := constraint.Cypher(plan, constraint.ProjectCount)
	if err != nil {
		return 0, err
	}
	resp, err := r.query(ctx, stmt, params)
	if err != nil {
		return 0, err
	}
	n, ok := resp.Scalar()
	if !ok || n < 0 {
		return 0, fmt.Errorf("%w: count query returned no integer", wire.ErrMalformedResponse)
	}
	return uint64(n), nil
}

// Get reports identities above constraint.MaxParam as absent without a
// round trip, since no stored link can carry them.
func (r *remote[T]) Get(ctx context.Context, id T) (links.Link[T], bool, error) {
	if uint64(id) > constraint.MaxParam {
		return links.Link[T]{}, false, nil
	}
	var l links.Link[T]
	var found bool
	err := r.exec(ctx, func(s session) error {
		var err error
		l, found, err = get[T](ctx, s, id)
		return err
	})
	return l, found, err
}

func get[T links.Unsigned](ctx context.Context, s session, id T) (links.Link[T], bool, error) {
	resp, err := s.run(ctx, stmtGet, map[string]any{"id": int64(id)})
	if err != nil {
		return links.Link[T]{}, false, err
	}
	rows := resp.Rows()
	if len(rows) == 0 {
		return links.Link[T]{}, false, nil
	}
	source, okS := rows[0].Uint(0)
	target, okT := rows[0].Uint(1)
	if !okS || !okT {
		return links.Link[T]{}, false, fmt.Errorf("%w: link %d has non-integer endpoints", wire.ErrMalformedResponse, uint64(id))
	}
	return links.Link[T]{ID: id, Source: T(source), Target: T(target)}, true, nil
}

// Update reads the prior endpoints and then sets the new ones.
func (r *remote[T]) Update(ctx context.Context, id, source, target T) (links.Link[T], links.Link[T], error) {
	if uint64(id) > constraint.MaxParam {
		return links.Link[T]{}, links.Link[T]{}, links.NotFound(id)
	}
	src, tgt, err := endpoints(source, target)
	if err != nil {
		return links.Link[T]{}, links.Link[T]{}, err
	}
	var before links.Link[T]
	err = r.exec(ctx, func(s session) error {
		var found bool
		var err error
		before, found, err = get[T](ctx, s, id)
		if err != nil {
			return err
		}
		if !found {
			return links.NotFound(id)
		}
		params := map[string]any{"id": int64(id), "source": src, "target": tgt}
		_, err = s.run(ctx, stmtUpdate, params)
		return err
	})
	if err != nil {
		return links.Link[T]{}, links.Link[T]{}, err
	}
	return before, links.Link[T]{ID: id, Source: source, Target: target}, nil
}

// Delete reads the prior endpoints and then removes the node.
func (r *remote[T]) Delete(ctx context.Context, id T) (links.Link[T], error) {
	if uint64(id) > constraint.MaxParam {
		return links.Link[T]{}, links.NotFound(id)
	}
	var before links.Link[T]
	err := r.exec(ctx, func(s session) error {
		var found bool
		var err error
		before, found, err = get[T](ctx, s, id)
		if err != nil {
			return err
		}
		if !found {
			return links.NotFound(id)
		}
		_, err = s.run(ctx, stmtDelete, map[string]any{"id": int64(id)})
		return err
	})
	if err != nil {
		return links.Link[T]{}, err
	}
	return before, nil
}

// Fork ensures the schema and purges links left behind by an earlier run,
// so that background links get identities from 1.
func (r *remote[T]) Fork(ctx context.Context) error {
	if err := r.CreateSchema(ctx); err != nil {
		r.log.V(1).Info("schema setup failed", "backend", r.name, "error", err.Error())
	}
	n, err := r.Count(ctx, nil)
	if err != nil {
		return err
	}
	if n == 0 && r.ids.Peek() == identity.First {
		return nil
	}
	return r.DropAll(ctx)
}

// Unfork deletes every link and resets the allocator.
func (r *remote[T]) Unfork(ctx context.Context) error {
	return r.DropAll(ctx)
}

func linkFromRow[T links.Unsigned](row wire.Row) (links.Link[T], error) {
	id, okI := row.Uint(0)
	source, okS := row.Uint(1)
	target, okT := row.Uint(2)
	if !okI || !okS || !okT {
		return links.Link[T]{}, fmt.Errorf("%w: row %v is not (id, source, target)", wire.ErrMalformedResponse, row.Row)
	}
	return links.Link[T]{ID: T(id), Source: T(source), Target: T(target)}, nil
}
