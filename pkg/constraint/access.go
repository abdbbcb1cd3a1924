package constraint

import (
	"fmt"

	"github.com/orneryd/linkbench/pkg/links"
)

// Path is the local access path chosen for a plan.
type Path int

const (
	// FullScan walks every record.
	FullScan Path = iota
	// DirectIndex reads one record by identity.
	DirectIndex
	// SourceTree walks the (source, id) index for one source.
	SourceTree
	// TargetTree walks the (target, id) index for one target.
	TargetTree
)

func (p Path) String() string {
	switch p {
	case FullScan:
		return "full-scan"
	case DirectIndex:
		return "direct-index"
	case SourceTree:
		return "source-tree"
	case TargetTree:
		return "target-tree"
	default:
		return fmt.Sprintf("path(%d)", int(p))
	}
}

// Access describes how an array-plus-index-tree engine evaluates a plan.
// Candidates produced by Path keyed by Key must additionally satisfy every
// Residual condition.
type Access[T links.Unsigned] struct {
	Path     Path
	Key      T
	Residual []Condition[T]
}

// Access picks the access path for p.
//
// A concrete identity always wins: the record is read directly and the
// remaining conditions are checked on it. With both endpoints concrete the
// source tree is walked and candidates are filtered on target.
func (p Plan[T]) Access() Access[T] {
	switch p.Kind {
	case ByIdentity:
		return Access[T]{Path: DirectIndex, Key: p.ID}
	case Filtered:
		if id, ok := p.Value(FieldID); ok {
			return Access[T]{Path: DirectIndex, Key: id, Residual: p.without(FieldID)}
		}
		if source, ok := p.Value(FieldSource); ok {
			return Access[T]{Path: SourceTree, Key: source, Residual: p.without(FieldSource)}
		}
		if target, ok := p.Value(FieldTarget); ok {
			return Access[T]{Path: TargetTree, Key: target, Residual: p.without(FieldTarget)}
		}
	}
	return Access[T]{Path: FullScan}
}

// Check reports whether l satisfies every residual condition.
func (a Access[T]) Check(l links.Link[T]) bool {
	for _, c := range a.Residual {
		if Of(c.Field, l) != c.Value {
			return false
		}
	}
	return true
}

func (p Plan[T]) without(f Field) []Condition[T] {
	var out []Condition[T]
	for _, c := range p.Conditions {
		if c.Field != f {
			out = append(out, c)
		}
	}
	return out
}
