package neo4jtest

import (
	"regexp"
	"strings"

	"github.com/orneryd/linkbench/pkg/wire"
)

var (
	reSchema = regexp.MustCompile(`^CREATE (CONSTRAINT|INDEX) \w+ IF NOT EXISTS FOR \(l:Link\) (REQUIRE|ON) `)
	reMaxID  = regexp.MustCompile(`^MATCH \(l:Link\) RETURN COALESCE\(max\(l\.id\), 0\) AS (\w+)$`)
	reCreate = regexp.MustCompile(`^CREATE \(l:Link \{id: \$id, source: \$(id|source), target: \$(id|target)\}\)$`)
	reSet    = regexp.MustCompile(`^MATCH \(l:Link \{id: \$id\}\) SET l\.source = \$source, l\.target = \$target$`)
	reDelete = regexp.MustCompile(`^MATCH \(l:Link( \{id: \$id\})?\) (DETACH )?DELETE l$`)
	reMatch  = regexp.MustCompile(`^MATCH \(l:Link( \{id: \$id\})?\)(?: WHERE (.+?))? RETURN (.+?)(?: ORDER BY l\.id)?$`)
	reCond   = regexp.MustCompile(`^l\.(id|source|target) = \$(id|source|target)$`)
	reProj   = regexp.MustCompile(`^(?:l\.(id|source|target)|count\(l\)) AS (\w+)$`)
)

func syntaxError(stmt string) *wire.QueryError {
	return &wire.QueryError{Code: "Neo.ClientError.Statement.SyntaxError", Message: "unsupported statement: " + stmt}
}

func missingParam(name string) *wire.QueryError {
	return &wire.QueryError{Code: "Neo.ClientError.Statement.ParameterMissing", Message: "Expected parameter(s): " + name}
}

func param(params map[string]any, name string) (int64, *wire.QueryError) {
	v, ok := number(params[name])
	if !ok {
		return 0, missingParam(name)
	}
	return v, nil
}

func field(id int64, st [2]int64, name string) int64 {
	switch name {
	case "source":
		return st[0]
	case "target":
		return st[1]
	default:
		return id
	}
}

// execute runs one statement against the in-memory links. Callers hold
// s.mu.
func (s *Server) execute(stmt string, params map[string]any) (wire.Result, *wire.QueryError) {
	empty := wire.Result{Columns: []string{}, Data: []wire.Row{}}

	if len(s.failures) > 0 {
		qerr := s.failures[0]
		s.failures = s.failures[1:]
		return empty, &qerr
	}

	switch {
	case reSchema.MatchString(stmt):
		return empty, nil

	case reMaxID.MatchString(stmt):
		col := reMaxID.FindStringSubmatch(stmt)[1]
		var highest int64
		for id := range s.links {
			if id > highest {
				highest = id
			}
		}
		return wire.Result{Columns: []string{col}, Data: []wire.Row{{Row: []any{highest}}}}, nil

	case reCreate.MatchString(stmt):
		m := reCreate.FindStringSubmatch(stmt)
		id, qerr := param(params, "id")
		if qerr != nil {
			return empty, qerr
		}
		source, qerr := param(params, m[1])
		if qerr != nil {
			return empty, qerr
		}
		target, qerr := param(params, m[2])
		if qerr != nil {
			return empty, qerr
		}
		if _, exists := s.links[id]; exists {
			return empty, &wire.QueryError{
				Code:    "Neo.ClientError.Schema.ConstraintValidationFailed",
				Message: "Node already exists with label `Link` and property `id`",
			}
		}
		s.links[id] = [2]int64{source, target}
		return empty, nil

	case reSet.MatchString(stmt):
		id, qerr := param(params, "id")
		if qerr != nil {
			return empty, qerr
		}
		source, qerr := param(params, "source")
		if qerr != nil {
			return empty, qerr
		}
		target, qerr := param(params, "target")
		if qerr != nil {
			return empty, qerr
		}
		if _, ok := s.links[id]; ok {
			s.links[id] = [2]int64{source, target}
		}
		return empty, nil

	case reDelete.MatchString(stmt):
		m := reDelete.FindStringSubmatch(stmt)
		if m[1] == "" {
			s.links = make(map[int64][2]int64)
			return empty, nil
		}
		id, qerr := param(params, "id")
		if qerr != nil {
			return empty, qerr
		}
		delete(s.links, id)
		return empty, nil

	case reMatch.MatchString(stmt):
		return s.match(stmt, params)
	}
	return empty, syntaxError(stmt)
}

type condition struct {
	field string
	value int64
}

func (s *Server) match(stmt string, params map[string]any) (wire.Result, *wire.QueryError) {
	m := reMatch.FindStringSubmatch(stmt)
	var conds []condition
	if m[1] != "" {
		id, qerr := param(params, "id")
		if qerr != nil {
			return wire.Result{}, qerr
		}
		conds = append(conds, condition{field: "id", value: id})
	}
	if m[2] != "" {
		for _, clause := range strings.Split(m[2], " AND ") {
			cm := reCond.FindStringSubmatch(clause)
			if cm == nil {
				return wire.Result{}, syntaxError(stmt)
			}
			v, qerr := param(params, cm[2])
			if qerr != nil {
				return wire.Result{}, qerr
			}
			conds = append(conds, condition{field: cm[1], value: v})
		}
	}

	var fields, columns []string
	count := false
	for _, item := range strings.Split(m[3], ", ") {
		pm := reProj.FindStringSubmatch(item)
		if pm == nil {
			return wire.Result{}, syntaxError(stmt)
		}
		if pm[1] == "" {
			count = true
		}
		fields = append(fields, pm[1])
		columns = append(columns, pm[2])
	}
	if count && len(columns) != 1 {
		return wire.Result{}, syntaxError(stmt)
	}

	result := wire.Result{Columns: columns, Data: []wire.Row{}}
	var n int64
	for _, id := range s.sortedIDs() {
		st := s.links[id]
		ok := true
		for _, c := range conds {
			if field(id, st, c.field) != c.value {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		n++
		if count {
			continue
		}
		row := make([]any, len(fields))
		for i, f := range fields {
			row[i] = field(id, st, f)
		}
		result.Data = append(result.Data, wire.Row{Row: row})
	}
	if count {
		result.Data = []wire.Row{{Row: []any{n}}}
	}
	return result, nil
}
