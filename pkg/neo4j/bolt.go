package neo4j

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/orneryd/linkbench/pkg/links"
	"github.com/orneryd/linkbench/pkg/wire"
)

// BoltOptions configures the Bolt backend.
type BoltOptions struct {
	// URI is a bolt:// or neo4j:// driver URI.
	URI      string
	User     string
	Password string
	Database string
	Logger   logr.Logger
}

// boltSession runs each statement as an auto-commit query on a driver
// session that lives for one operation.
type boltSession struct {
	s   neo4j.SessionWithContext
	uri string
}

func (b *boltSession) run(ctx context.Context, statement string, params map[string]any) (*wire.Response, error) {
	res, err := b.s.Run(ctx, statement, params)
	if err != nil {
		return nil, boltError(b.uri, err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, boltError(b.uri, err)
	}
	result := wire.Result{Data: make([]wire.Row, 0, len(records))}
	for _, rec := range records {
		if result.Columns == nil {
			result.Columns = rec.Keys
		}
		result.Data = append(result.Data, wire.Row{Row: rec.Values})
	}
	return &wire.Response{Results: []wire.Result{result}}, nil
}

func (b *boltSession) finish(ctx context.Context, err error) error {
	closeErr := b.s.Close(ctx)
	if err != nil {
		return err
	}
	if closeErr != nil {
		return boltError(b.uri, closeErr)
	}
	return nil
}

// boltError maps driver errors onto the wire error taxonomy so that every
// remote backend reports failures the same way.
func boltError(uri string, err error) error {
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) {
		return &wire.QueryError{Code: nerr.Code, Message: nerr.Msg}
	}
	return &wire.TransportError{Op: "bolt", Addr: uri, Err: err}
}

// Bolt runs the link operations through the official Neo4j driver. It
// serves as a reference point for the hand-built HTTP client.
type Bolt[T links.Unsigned] struct {
	*remote[T]
	driver neo4j.DriverWithContext
}

// ConnectBolt opens a driver, verifies connectivity, ensures the schema
// and seeds the identity allocator.
func ConnectBolt[T links.Unsigned](ctx context.Context, opts BoltOptions) (*Bolt[T], error) {
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.User, opts.Password, ""))
	if err != nil {
		return nil, err
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, boltError(opts.URI, err)
	}

	cfg := neo4j.SessionConfig{DatabaseName: opts.Database, AccessMode: neo4j.AccessModeWrite}
	open := func(ctx context.Context) (session, error) {
		return &boltSession{s: driver.NewSession(ctx, cfg), uri: opts.URI}, nil
	}
	b := &Bolt[T]{remote: newRemote[T](BoltName, open, opts.Logger), driver: driver}
	if err := b.setup(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	return b, nil
}

// Close closes the driver and its connection pool.
func (b *Bolt[T]) Close() error {
	return b.driver.Close(context.Background())
}

var _ links.Store[uint64] = (*Bolt[uint64])(nil)
