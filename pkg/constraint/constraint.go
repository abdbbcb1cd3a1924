// Package constraint compiles link query patterns into plans.
//
// A pattern is a slice of length 0, 1 or 3 laid out as (identity, source,
// target). Positions holding the wildcard match any value. Compilation is
// pure: the same pattern always yields the same plan, and the plan is then
// rendered either as a local access path (see Plan.Access) or as a
// parameterised Cypher statement (see Cypher). Both renderings select
// exactly the links satisfying every concrete position.
//
// Example:
//
//	w := links.Any[uint64]()
//	plan, err := constraint.Compile([]uint64{w, 5, w}, w)
//	// plan.Kind == constraint.Filtered, one condition: source = 5
package constraint

import (
	"fmt"
	"strings"

	"github.com/orneryd/linkbench/pkg/links"
)

// Kind classifies a compiled plan.
type Kind int

const (
	// ScanAll matches every link.
	ScanAll Kind = iota
	// ByIdentity matches at most the one link with Plan.ID.
	ByIdentity
	// Filtered matches links satisfying all of Plan.Conditions.
	Filtered
)

func (k Kind) String() string {
	switch k {
	case ScanAll:
		return "scan-all"
	case ByIdentity:
		return "by-identity"
	case Filtered:
		return "filtered"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field names a position of a link.
type Field int

const (
	FieldID Field = iota
	FieldSource
	FieldTarget
)

func (f Field) String() string {
	switch f {
	case FieldID:
		return "id"
	case FieldSource:
		return "source"
	case FieldTarget:
		return "target"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// Of returns the value of field f in l.
func Of[T links.Unsigned](f Field, l links.Link[T]) T {
	switch f {
	case FieldSource:
		return l.Source
	case FieldTarget:
		return l.Target
	default:
		return l.ID
	}
}

// Condition is one equality test of a Filtered plan.
type Condition[T links.Unsigned] struct {
	Field Field
	Value T
}

func (c Condition[T]) String() string {
	return fmt.Sprintf("%s = %d", c.Field, uint64(c.Value))
}

// Plan is a compiled pattern.
type Plan[T links.Unsigned] struct {
	Kind Kind
	// ID is set for ByIdentity plans.
	ID T
	// Conditions are ordered id, source, target and only hold concrete
	// positions. Set for Filtered plans.
	Conditions []Condition[T]
}

// Compile turns pattern into a plan. wildcard is the sentinel for T, normally links.Any[T]().
// Lengths other than 0, 1 and 3 fail with links.ErrInvalidConstraintShape.
func Compile[T links.Unsigned](pattern []T, wildcard T) (Plan[T], error) {
	switch len(pattern) {
	case 0:
		return Plan[T]{Kind: ScanAll}, nil
	case 1:
		if pattern[0] == wildcard {
			return Plan[T]{Kind: ScanAll}, nil
		}
		return Plan[T]{Kind: ByIdentity, ID: pattern[0]}, nil
	case 3:
		id, source, target := pattern[0], pattern[1], pattern[2]
		if source == wildcard && target == wildcard {
			if id == wildcard {
				return Plan[T]{Kind: ScanAll}, nil
			}
			return Plan[T]{Kind: ByIdentity, ID: id}, nil
		}
		conds := make([]Condition[T], 0, 3)
		if id != wildcard {
			conds = append(conds, Condition[T]{Field: FieldID, Value: id})
		}
		if source != wildcard {
			conds = append(conds, Condition[T]{Field: FieldSource, Value: source})
		}
		if target != wildcard {
			conds = append(conds, Condition[T]{Field: FieldTarget, Value: target})
		}
		return Plan[T]{Kind: Filtered, Conditions: conds}, nil
	default:
		return Plan[T]{}, links.ShapeError(len(pattern))
	}
}

// MustCompile is Compile for patterns known to be well formed.
func MustCompile[T links.Unsigned](pattern []T, wildcard T) Plan[T] {
	p, err := Compile(pattern, wildcard)
	if err != nil {
		panic(err)
	}
	return p
}

// Matches reports whether l satisfies the plan.
func (p Plan[T]) Matches(l links.Link[T]) bool {
	switch p.Kind {
	case ByIdentity:
		return l.ID == p.ID
	case Filtered:
		for _, c := range p.Conditions {
			if Of(c.Field, l) != c.Value {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Value returns the concrete value required for f, if any.
func (p Plan[T]) Value(f Field) (T, bool) {
	switch p.Kind {
	case ByIdentity:
		if f == FieldID {
			return p.ID, true
		}
	case Filtered:
		for _, c := range p.Conditions {
			if c.Field == f {
				return c.Value, true
			}
		}
	}
	var zero T
	return zero, false
}

func (p Plan[T]) String() string {
	switch p.Kind {
	case ByIdentity:
		return fmt.Sprintf("by-identity(%d)", uint64(p.ID))
	case Filtered:
		parts := make([]string, len(p.Conditions))
		for i, c := range p.Conditions {
			parts[i] = c.String()
		}
		return "filtered(" + strings.Join(parts, " and ") + ")"
	default:
		return p.Kind.String()
	}
}
