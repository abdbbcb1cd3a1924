package neo4j

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/orneryd/linkbench/pkg/links"
	"github.com/orneryd/linkbench/pkg/wire"
)

// Backend names as they appear in benchmark reports.
const (
	NonTransactionName = "Neo4j_NonTransaction"
	TransactionName    = "Neo4j_Transaction"
	BoltName           = "Neo4j_Bolt"
)

// Options configures an HTTP backend.
type Options struct {
	// URI accepts bolt://, neo4j:// and http:// forms; see wire.ParseURI.
	URI      string
	User     string
	Password string
	Database string
	Logger   logr.Logger
}

func (o Options) wire() (*wire.Client, error) {
	return wire.NewFromURI(o.URI, o.User, o.Password, o.Database)
}

// autocommit sends each statement as its own request.
type autocommit struct {
	c *wire.Client
}

func (a autocommit) run(ctx context.Context, statement string, params map[string]any) (*wire.Response, error) {
	return a.c.Execute(ctx, statement, params)
}

func (autocommit) finish(_ context.Context, err error) error { return err }

// explicit opens a transaction with the first statement and commits it in
// finish. A failed operation is rolled back; the rollback outcome is not
// reported because the server may already have discarded the transaction.
type explicit struct {
	c  *wire.Client
	tx *wire.Tx
}

func (e *explicit) run(ctx context.Context, statement string, params map[string]any) (*wire.Response, error) {
	st := wire.Statement{Statement: statement, Parameters: params}
	if e.tx == nil {
		tx, resp, err := e.c.Begin(ctx, st)
		if err != nil {
			return nil, err
		}
		e.tx = tx
		return resp, nil
	}
	return e.tx.Run(ctx, st)
}

func (e *explicit) finish(ctx context.Context, err error) error {
	if e.tx == nil {
		return err
	}
	if err != nil {
		_ = e.tx.Rollback(ctx)
		return err
	}
	_, err = e.tx.Commit(ctx)
	return err
}

// Client runs every statement in its own auto-committed request.
//
// Example:
//
//	c, err := neo4j.Connect[uint64](ctx, neo4j.Options{
//		URI: "bolt://localhost:7687", User: "neo4j", Password: "password",
//	})
//	l, err := c.CreatePoint(ctx)
type Client[T links.Unsigned] struct {
	*remote[T]
	wire *wire.Client
}

// NewClient wraps an existing wire client without contacting the server.
func NewClient[T links.Unsigned](wc *wire.Client, log logr.Logger) *Client[T] {
	open := func(context.Context) (session, error) { return autocommit{c: wc}, nil }
	return &Client[T]{remote: newRemote[T](NonTransactionName, open, log), wire: wc}
}

// Connect creates a Client, ensures the schema and seeds the identity
// allocator from the stored links.
func Connect[T links.Unsigned](ctx context.Context, opts Options) (*Client[T], error) {
	wc, err := opts.wire()
	if err != nil {
		return nil, err
	}
	c := NewClient[T](wc, opts.Logger)
	if err := c.setup(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Wire returns the underlying wire client.
func (c *Client[T]) Wire() *wire.Client { return c.wire }

// Close is a no-op: no connection outlives a request.
func (c *Client[T]) Close() error { return nil }

// Transaction runs every operation inside one explicit transaction: the
// first statement opens it, later statements run in it, and it is committed
// once the operation succeeds.
type Transaction[T links.Unsigned] struct {
	*remote[T]
	wire *wire.Client
}

// NewTransaction wraps an existing wire client without contacting the
// server.
func NewTransaction[T links.Unsigned](wc *wire.Client, log logr.Logger) *Transaction[T] {
	open := func(context.Context) (session, error) { return &explicit{c: wc}, nil }
	return &Transaction[T]{remote: newRemote[T](TransactionName, open, log), wire: wc}
}

// ConnectTransaction creates a Transaction backend, ensures the schema and
// seeds the identity allocator.
func ConnectTransaction[T links.Unsigned](ctx context.Context, opts Options) (*Transaction[T], error) {
	wc, err := opts.wire()
	if err != nil {
		return nil, err
	}
	t := NewTransaction[T](wc, opts.Logger)
	if err := t.setup(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Close is a no-op: no connection outlives a request.
func (t *Transaction[T]) Close() error { return nil }

var (
	_ links.Store[uint64] = (*Client[uint64])(nil)
	_ links.Store[uint64] = (*Transaction[uint64])(nil)
)
