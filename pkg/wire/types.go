package wire

import (
	"encoding/json"
	"math"
	"strconv"
)

// Statement is one Cypher statement of a transactional request.
type Statement struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Request is the body of every transactional endpoint call.
type Request struct {
	Statements []Statement `json:"statements"`
}

// Response is the decoded body of a transactional endpoint reply.
type Response struct {
	Results     []Result          `json:"results"`
	Errors      []QueryError      `json:"errors"`
	Commit      string            `json:"commit,omitempty"`
	Transaction *TransactionState `json:"transaction,omitempty"`
}

// TransactionState is returned for open explicit transactions.
type TransactionState struct {
	Expires string `json:"expires"`
}

// Result is the outcome of one statement.
type Result struct {
	Columns []string `json:"columns"`
	Data    []Row    `json:"data"`
}

// Row is one record of a result. Numbers decode as json.Number so that
// 64-bit identities survive unchanged.
type Row struct {
	Row  []any `json:"row"`
	Meta []any `json:"meta,omitempty"`
}

// Err returns the first server error, or nil.
func (r *Response) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	e := r.Errors[0]
	return &e
}

// Rows returns the rows of the first result.
func (r *Response) Rows() []Row {
	if len(r.Results) == 0 {
		return nil
	}
	return r.Results[0].Data
}

// Scalar returns the first column of the first row as an integer.
func (r *Response) Scalar() (int64, bool) {
	rows := r.Rows()
	if len(rows) == 0 {
		return 0, false
	}
	return rows[0].Int(0)
}

// Int returns column i as an integer. It understands json.Number and the
// native integer and float types produced by other decoders.
func (r Row) Int(i int) (int64, bool) {
	if i < 0 || i >= len(r.Row) {
		return 0, false
	}
	return toInt64(r.Row[i])
}

// Uint returns column i as a non-negative integer.
func (r Row) Uint(i int) (uint64, bool) {
	v, ok := r.Int(i)
	if !ok || v < 0 {
		return 0, false
	}
	return uint64(v), true
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}
