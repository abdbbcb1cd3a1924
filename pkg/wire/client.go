// Package wire is a minimal client for the Neo4j transactional HTTP API.
//
// Every call opens a fresh TCP connection, writes one HTTP/1.1 request by
// hand, reads the reply to EOF and decodes it. There is no pooling, no
// keep-alive and no retry: a benchmark measures exactly one request per
// operation. The only deadline applied is the one carried by the caller's
// context.
//
// Example:
//
//	c, err := wire.NewFromURI("bolt://localhost:7687", "neo4j", "password", "neo4j")
//	resp, err := c.Execute(ctx, "MATCH (l:Link) RETURN count(l) AS count", nil)
//	n, _ := resp.Scalar()
package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
)

// DefaultDatabase is used when Options.Database is empty.
const DefaultDatabase = "neo4j"

// Options configures a Client.
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Client holds immutable connection parameters. It is safe for concurrent
// use because it keeps no connection state.
type Client struct {
	host     string
	port     int
	addr     string
	auth     string
	database string
	dialer   net.Dialer
}

// New creates a client. Zero values fall back to localhost, the default
// HTTP port and the default database.
func New(opts Options) *Client {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.Port == 0 {
		opts.Port = DefaultHTTPPort
	}
	if opts.Database == "" {
		opts.Database = DefaultDatabase
	}
	c := &Client{
		host:     opts.Host,
		port:     opts.Port,
		addr:     net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		database: opts.Database,
	}
	if opts.User != "" || opts.Password != "" {
		c.auth = BasicAuth(opts.User, opts.Password)
	}
	return c
}

// NewFromURI creates a client from a connection URI, see ParseURI.
func NewFromURI(uri, user, password, database string) (*Client, error) {
	host, port, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return New(Options{Host: host, Port: port, User: user, Password: password, Database: database}), nil
}

// Addr returns host:port of the server.
func (c *Client) Addr() string { return c.addr }

// Database returns the database name used in request paths.
func (c *Client) Database() string { return c.database }

// Execute runs one statement in an auto-committed transaction. A server
// error is returned as *QueryError; the statement then had no effect.
func (c *Client) Execute(ctx context.Context, statement string, params map[string]any) (*Response, error) {
	return c.post(ctx, "/db/"+c.database+"/tx/commit", Statement{Statement: statement, Parameters: params})
}

// ExecuteAll runs several statements in one auto-committed transaction.
func (c *Client) ExecuteAll(ctx context.Context, statements ...Statement) (*Response, error) {
	return c.post(ctx, "/db/"+c.database+"/tx/commit", statements...)
}

func (c *Client) post(ctx context.Context, path string, statements ...Statement) (*Response, error) {
	if statements == nil {
		statements = []Statement{}
	}
	body, err := json.Marshal(Request{Statements: statements})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	rep, err := c.roundTrip(ctx, "POST", path, body)
	if err != nil {
		return nil, err
	}
	return decodeResponse(rep)
}

// roundTrip sends one request on a new connection and reads the whole
// reply.
func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte) (*reply, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, &TransportError{Op: "dial", Addr: c.addr, Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, &TransportError{Op: "deadline", Addr: c.addr, Err: err}
		}
	}

	req := buildRequest(method, path, c.host, c.port, c.auth, body)
	if _, err := conn.Write(req); err != nil {
		return nil, &TransportError{Op: "write", Addr: c.addr, Err: err}
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		return nil, &TransportError{Op: "read", Addr: c.addr, Err: err}
	}
	if len(raw) == 0 {
		return nil, &TransportError{Op: "read", Addr: c.addr, Err: io.ErrUnexpectedEOF}
	}
	return parseReply(raw)
}

func decodeResponse(rep *reply) (*Response, error) {
	var resp Response
	if len(bytes.TrimSpace(rep.body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(rep.body))
		dec.UseNumber()
		if err := dec.Decode(&resp); err != nil {
			if rep.status >= 400 {
				return nil, &QueryError{Code: "HTTP." + strconv.Itoa(rep.status), Message: rep.reason}
			}
			return nil, malformed("decode body: %v: %q", err, snippet(rep.body))
		}
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	if rep.status >= 400 {
		return nil, &QueryError{Code: "HTTP." + strconv.Itoa(rep.status), Message: rep.reason}
	}
	return &resp, nil
}
