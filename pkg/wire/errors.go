package wire

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is wrapped by every framing or decoding failure of a
// server response.
var ErrMalformedResponse = errors.New("malformed response")

// ErrTxDone is returned when a committed or rolled back transaction is used.
var ErrTxDone = errors.New("transaction already finished")

// QueryError is an application-level error reported by the server. Only
// the first error of a response is surfaced; the statement had no effect.
type QueryError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("neo4j: %s: %s", e.Code, e.Message)
}

// TransportError reports a failure to reach the server or to exchange
// bytes with it. It is never retried.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("wire: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err stems from a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// snippet bounds a body excerpt placed in error messages.
func snippet(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
