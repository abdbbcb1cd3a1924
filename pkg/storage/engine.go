package storage

import (
	"context"
	"errors"

	"github.com/orneryd/linkbench/pkg/constraint"
	"github.com/orneryd/linkbench/pkg/links"
)

// Engine is the operation surface shared by the local link engines.
type Engine[T links.Unsigned] interface {
	CreateLink(source, target T) (T, error)
	GetLink(id T) (links.Link[T], error)
	UpdateLink(id, source, target T) (links.Link[T], error)
	DeleteLink(id T) (links.Link[T], error)
	EachLink(plan constraint.Plan[T], visit func(links.Link[T]) links.Flow) (links.Flow, error)
	CountLinks(plan constraint.Plan[T]) (uint64, error)
	DeleteAll() error
	Close() error
}

var (
	_ Engine[uint64] = (*Store[uint64])(nil)
	_ Engine[uint64] = (*Badger[uint64])(nil)
)

// Local adapts an Engine to links.Store and to the benchmark lifecycle
// (Fork/Unfork). Engine errors pass through unchanged except missing or
// invalid identities, which become links.NotFoundError.
type Local[T links.Unsigned] struct {
	name   string
	engine Engine[T]
}

// NewLocal wraps engine under a display name.
func NewLocal[T links.Unsigned](name string, engine Engine[T]) *Local[T] {
	return &Local[T]{name: name, engine: engine}
}

// Name returns the display name.
func (l *Local[T]) Name() string { return l.name }

// Engine returns the wrapped engine.
func (l *Local[T]) Engine() Engine[T] { return l.engine }

func notFound[T links.Unsigned](id T, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidID) {
		return links.NotFound(id)
	}
	return err
}

func (l *Local[T]) Create(_ context.Context, source, target T) (links.Link[T], error) {
	id, err := l.engine.CreateLink(source, target)
	if err != nil {
		return links.Link[T]{}, err
	}
	return links.Link[T]{ID: id, Source: source, Target: target}, nil
}

// CreatePoint creates an empty link and then points it at itself.
func (l *Local[T]) CreatePoint(_ context.Context) (links.Link[T], error) {
	id, err := l.engine.CreateLink(0, 0)
	if err != nil {
		return links.Link[T]{}, err
	}
	if _, err := l.engine.UpdateLink(id, id, id); err != nil {
		return links.Link[T]{}, err
	}
	return links.Point(id), nil
}

func (l *Local[T]) Each(_ context.Context, pattern []T, visit func(links.Link[T]) links.Flow) (links.Flow, error) {
	plan, err := constraint.Compile(pattern, links.Any[T]())
	if err != nil {
		return links.Continue, err
	}
	return l.engine.EachLink(plan, visit)
}

func (l *Local[T]) Count(_ context.Context, pattern []T) (uint64, error) {
	plan, err := constraint.Compile(pattern, links.Any[T]())
	if err != nil {
		return 0, err
	}
	return l.engine.CountLinks(plan)
}

func (l *Local[T]) Get(_ context.Context, id T) (links.Link[T], bool, error) {
	link, err := l.engine.GetLink(id)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidID) {
		return links.Link[T]{}, false, nil
	}
	if err != nil {
		return links.Link[T]{}, false, err
	}
	return link, true, nil
}

func (l *Local[T]) Update(_ context.Context, id, source, target T) (links.Link[T], links.Link[T], error) {
	before, err := l.engine.UpdateLink(id, source, target)
	if err != nil {
		return links.Link[T]{}, links.Link[T]{}, notFound(id, err)
	}
	return before, links.Link[T]{ID: id, Source: source, Target: target}, nil
}

func (l *Local[T]) Delete(_ context.Context, id T) (links.Link[T], error) {
	before, err := l.engine.DeleteLink(id)
	if err != nil {
		return links.Link[T]{}, notFound(id, err)
	}
	return before, nil
}

func (l *Local[T]) Close() error { return l.engine.Close() }

// Fork purges links left behind by an earlier run of a persistent engine.
func (l *Local[T]) Fork(_ context.Context) error {
	n, err := l.engine.CountLinks(constraint.Plan[T]{Kind: constraint.ScanAll})
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return l.engine.DeleteAll()
}

// Unfork removes every link.
func (l *Local[T]) Unfork(_ context.Context) error {
	return l.engine.DeleteAll()
}
