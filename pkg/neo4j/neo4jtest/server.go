// Package neo4jtest provides an in-process fake of the Neo4j transactional
// HTTP API that understands the statements issued by package neo4j.
//
// Statements take effect as soon as they run; rolling back an explicit
// transaction discards the transaction but does not undo them.
package neo4jtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/orneryd/linkbench/pkg/links"
	"github.com/orneryd/linkbench/pkg/wire"
)

// Server is a fake Neo4j endpoint. Create it with NewServer and Close it
// when done.
type Server struct {
	*httptest.Server

	user     string
	password string
	database string
	chunked  bool

	mu         sync.Mutex
	links      map[int64][2]int64
	txs        map[int]bool
	nextTx     int
	failures   []wire.QueryError
	statements []string
	requests   int
}

// Option configures a Server.
type Option func(*Server)

// WithAuth requires basic auth with the given credentials.
func WithAuth(user, password string) Option {
	return func(s *Server) { s.user, s.password = user, password }
}

// WithChunked answers with chunked transfer encoding, flushing the body in
// two parts.
func WithChunked() Option {
	return func(s *Server) { s.chunked = true }
}

// WithDatabase changes the database name served (default "neo4j").
func WithDatabase(name string) Option {
	return func(s *Server) { s.database = name }
}

// NewServer starts a fake server on a loopback port.
func NewServer(opts ...Option) *Server {
	s := &Server{
		database: "neo4j",
		links:    make(map[int64][2]int64),
		txs:      make(map[int]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(s)
	return s
}

// URI returns an http:// URI for the server.
func (s *Server) URI() string {
	return "http://" + s.Listener.Addr().String()
}

// FailNext makes the next statement fail with the given error instead of
// running. Calls queue up.
func (s *Server) FailNext(code, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, wire.QueryError{Code: code, Message: message})
}

// Put stores links directly, bypassing the protocol.
func (s *Server) Put(ls ...links.Link[uint64]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range ls {
		s.links[int64(l.ID)] = [2]int64{int64(l.Source), int64(l.Target)}
	}
}

// Links returns the stored links in identity order.
func (s *Server) Links() []links.Link[uint64] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]links.Link[uint64], 0, len(s.links))
	for _, id := range s.sortedIDs() {
		st := s.links[id]
		out = append(out, links.Link[uint64]{ID: uint64(id), Source: uint64(st[0]), Target: uint64(st[1])})
	}
	return out
}

// Statements returns every statement received, in order.
func (s *Server) Statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statements...)
}

// Requests returns the number of HTTP requests served.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// OpenTransactions returns the number of explicit transactions not yet
// committed or rolled back.
func (s *Server) OpenTransactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs)
}

// Reset clears links, transactions and recordings.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = make(map[int64][2]int64)
	s.txs = make(map[int]bool)
	s.failures = nil
	s.statements = nil
	s.requests = 0
}

func (s *Server) sortedIDs() []int64 {
	ids := make([]int64, 0, len(s.links))
	for id := range s.links {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ServeHTTP routes the transactional endpoints:
//
//	POST   /db/{db}/tx/commit      auto-commit
//	POST   /db/{db}/tx             begin
//	POST   /db/{db}/tx/{n}         run in transaction
//	POST   /db/{db}/tx/{n}/commit  commit
//	DELETE /db/{db}/tx/{n}         rollback
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	if s.user != "" || s.password != "" {
		if r.Header.Get("Authorization") != wire.BasicAuth(s.user, s.password) {
			s.writeError(w, http.StatusUnauthorized, "Neo.ClientError.Security.Unauthorized", "The client is unauthorized due to authentication failure.")
			return
		}
	}

	prefix := "/db/" + s.database + "/tx"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		s.writeError(w, http.StatusNotFound, "Neo.ClientError.Database.DatabaseNotFound", "Database does not exist: "+r.URL.Path)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	parts := strings.Split(rest, "/")

	switch {
	case r.Method == http.MethodPost && rest == "commit":
		s.serveStatements(w, r, 0, true)
	case r.Method == http.MethodPost && rest == "":
		s.nextTx++
		s.txs[s.nextTx] = true
		s.serveStatements(w, r, s.nextTx, false)
	case len(parts) >= 1 && len(parts) <= 2:
		n, err := strconv.Atoi(parts[0])
		if err != nil || !s.txs[n] {
			s.writeError(w, http.StatusNotFound, "Neo.ClientError.Transaction.TransactionNotFound", "Unrecognized transaction id")
			return
		}
		switch {
		case r.Method == http.MethodDelete && len(parts) == 1:
			delete(s.txs, n)
			s.write(w, http.StatusOK, wire.Response{Results: []wire.Result{}, Errors: []wire.QueryError{}})
		case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "commit":
			s.serveStatements(w, r, n, true)
		case r.Method == http.MethodPost && len(parts) == 1:
			s.serveStatements(w, r, n, false)
		default:
			s.writeError(w, http.StatusMethodNotAllowed, "Neo.ClientError.Request.Invalid", "unsupported method")
		}
	default:
		s.writeError(w, http.StatusNotFound, "Neo.ClientError.Request.Invalid", "unknown endpoint "+r.URL.Path)
	}
}

func (s *Server) serveStatements(w http.ResponseWriter, r *http.Request, tx int, commit bool) {
	var req wire.Request
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		if tx != 0 {
			delete(s.txs, tx)
		}
		s.writeError(w, http.StatusBadRequest, "Neo.ClientError.Request.InvalidFormat", err.Error())
		return
	}

	resp := wire.Response{Results: []wire.Result{}, Errors: []wire.QueryError{}}
	for _, st := range req.Statements {
		s.statements = append(s.statements, st.Statement)
		result, qerr := s.execute(st.Statement, st.Parameters)
		if qerr != nil {
			resp.Errors = append(resp.Errors, *qerr)
			// A failed statement rolls back an explicit transaction.
			if tx != 0 {
				delete(s.txs, tx)
			}
			s.write(w, http.StatusOK, resp)
			return
		}
		resp.Results = append(resp.Results, result)
	}

	status := http.StatusOK
	switch {
	case tx != 0 && commit:
		delete(s.txs, tx)
	case tx != 0:
		resp.Commit = fmt.Sprintf("http://%s/db/%s/tx/%d/commit", r.Host, s.database, tx)
		resp.Transaction = &wire.TransactionState{Expires: "Thu, 01 Jan 2099 00:00:00 +0000"}
		if r.URL.Path == "/db/"+s.database+"/tx" {
			status = http.StatusCreated
		}
	}
	s.write(w, status, resp)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.write(w, status, wire.Response{Errors: []wire.QueryError{{Code: code, Message: message}}})
}

func (s *Server) write(w http.ResponseWriter, status int, resp wire.Response) {
	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if !s.chunked {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(status)
		w.Write(body)
		return
	}
	w.WriteHeader(status)
	half := len(body) / 2
	w.Write(body[:half])
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	w.Write(body[half:])
}

// number converts a decoded JSON parameter to an integer.
func number(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
