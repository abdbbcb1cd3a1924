package constraint

import (
	"math"
	"strings"

	"github.com/orneryd/linkbench/pkg/links"
)

// Projection selects what a rendered statement returns.
type Projection int

const (
	// ProjectLinks returns id, source and target columns.
	ProjectLinks Projection = iota
	// ProjectCount returns a single count column.
	ProjectCount
)

// Label is the node label every link is stored under.
const Label = "Link"

// Columns returned by each projection.
var (
	LinkColumns  = []string{"id", "source", "target"}
	CountColumns = []string{"count"}
)

// MaxParam is the largest field value a statement parameter can carry.
const MaxParam uint64 = math.MaxInt64

// Param converts a field value to a statement parameter. Values above
// MaxParam are rejected with a *links.RangeError.
func Param[T links.Unsigned](field string, v T) (int64, error) {
	if uint64(v) > MaxParam {
		return 0, &links.RangeError{Field: field, Value: uint64(v), Max: MaxParam}
	}
	return int64(v), nil
}

// Cypher renders p as a parameterised statement. Parameter names match the
// field names ($id, $source, $target); values are int64 as the HTTP and
// Bolt APIs carry signed 64-bit integers. Link rows come back in identity
// order.
func Cypher[T links.Unsigned](p Plan[T], proj Projection) (string, map[string]any, error) {
	var sb strings.Builder
	var params map[string]any

	switch p.Kind {
	case ByIdentity:
		id, err := Param("id", p.ID)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString("MATCH (l:" + Label + " {id: $id})")
		params = map[string]any{"id": id}
	case Filtered:
		sb.WriteString("MATCH (l:" + Label + ") WHERE ")
		params = make(map[string]any, len(p.Conditions))
		for i, c := range p.Conditions {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			name := c.Field.String()
			v, err := Param(name, c.Value)
			if err != nil {
				return "", nil, err
			}
			sb.WriteString("l." + name + " = $" + name)
			params[name] = v
		}
	default:
		sb.WriteString("MATCH (l:" + Label + ")")
	}

	switch proj {
	case ProjectCount:
		sb.WriteString(" RETURN count(l) AS count")
	default:
		sb.WriteString(" RETURN l.id AS id, l.source AS source, l.target AS target")
		if p.Kind != ByIdentity {
			sb.WriteString(" ORDER BY l.id")
		}
	}
	return sb.String(), params, nil
}
