package neo4j

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/linkbench/pkg/links"
	"github.com/orneryd/linkbench/pkg/neo4j/neo4jtest"
	"github.com/orneryd/linkbench/pkg/storage"
	"github.com/orneryd/linkbench/pkg/wire"
)

const w = ^uint64(0)

// store is the part of both HTTP backends the tests drive.
type store interface {
	links.Store[uint64]
	Name() string
	Fork(ctx context.Context) error
	Unfork(ctx context.Context) error
	DropAll(ctx context.Context) error
	MaxIdentity(ctx context.Context) (uint64, error)
}

func connectors() map[string]func(ctx context.Context, opts Options) (store, error) {
	return map[string]func(ctx context.Context, opts Options) (store, error){
		NonTransactionName: func(ctx context.Context, opts Options) (store, error) {
			return Connect[uint64](ctx, opts)
		},
		TransactionName: func(ctx context.Context, opts Options) (store, error) {
			return ConnectTransaction[uint64](ctx, opts)
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, srv *neo4jtest.Server, s store)) {
	for name, connect := range connectors() {
		for _, chunked := range []bool{false, true} {
			label := name
			var opts []neo4jtest.Option
			if chunked {
				label += "/chunked"
				opts = append(opts, neo4jtest.WithChunked())
			}
			t.Run(label, func(t *testing.T) {
				srv := neo4jtest.NewServer(opts...)
				defer srv.Close()
				s, err := connect(context.Background(), Options{URI: srv.URI(), User: "neo4j", Password: "password", Logger: logr.Discard()})
				require.NoError(t, err)
				defer s.Close()
				assert.Equal(t, name, s.Name())
				fn(t, srv, s)
			})
		}
	}
}

func TestConnectEnsuresSchemaAndSeeds(t *testing.T) {
	srv := neo4jtest.NewServer()
	defer srv.Close()
	srv.Put(links.Point[uint64](40), links.Link[uint64]{ID: 41, Source: 1, Target: 2})

	c, err := Connect[uint64](context.Background(), Options{URI: srv.URI()})
	require.NoError(t, err)

	stmts := srv.Statements()
	require.Len(t, stmts, 4)
	assert.Equal(t, schemaStatements, stmts[:3])
	assert.Equal(t, stmtMaxID, stmts[3])
	assert.Equal(t, uint64(42), c.Allocator().Peek())

	l, err := c.CreatePoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, links.Point[uint64](42), l)
}

func TestConnectFailsWithoutServer(t *testing.T) {
	srv := neo4jtest.NewServer()
	uri := srv.URI()
	srv.Close()

	_, err := Connect[uint64](context.Background(), Options{URI: uri})
	require.Error(t, err)
	assert.True(t, wire.IsTransport(err))
}

func TestConnectUnauthorized(t *testing.T) {
	srv := neo4jtest.NewServer(neo4jtest.WithAuth("neo4j", "secret"))
	defer srv.Close()

	_, err := Connect[uint64](context.Background(), Options{URI: srv.URI(), User: "neo4j", Password: "wrong"})
	var qe *wire.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "Neo.ClientError.Security.Unauthorized", qe.Code)
}

func TestCreateIsSequential(t *testing.T) {
	forEachBackend(t, func(t *testing.T, srv *neo4jtest.Server, s store) {
		ctx := context.Background()
		for want := uint64(1); want <= 3; want++ {
			l, err := s.Create(ctx, want, 0)
			require.NoError(t, err)
			assert.Equal(t, want, l.ID)
		}
		p, err := s.CreatePoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, links.Point[uint64](4), p)
		assert.Equal(t, []links.Link[uint64]{
			{ID: 1, Source: 1}, {ID: 2, Source: 2}, {ID: 3, Source: 3}, links.Point[uint64](4),
		}, srv.Links())

		got, ok, err := s.Get(ctx, 2)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, links.Link[uint64]{ID: 2, Source: 2}, got)
		_, ok, err = s.Get(ctx, 99)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestFailedCreateLeavesNoGap(t *testing.T) {
	forEachBackend(t, func(t *testing.T, srv *neo4jtest.Server, s store) {
		ctx := context.Background()
		srv.FailNext("Neo.TransientError.General.DatabaseUnavailable", "try later")

		_, err := s.CreatePoint(ctx)
		var qe *wire.QueryError
		require.ErrorAs(t, err, &qe)
		assert.Empty(t, srv.Links())

		l, err := s.CreatePoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), l.ID)
	})
}

func TestUpdateAndDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, srv *neo4jtest.Server, s store) {
		ctx := context.Background()
		p, err := s.CreatePoint(ctx)
		require.NoError(t, err)

		before, after, err := s.Update(ctx, p.ID, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, p, before)
		assert.Equal(t, links.Link[uint64]{ID: p.ID}, after)
		assert.Equal(t, []links.Link[uint64]{after}, srv.Links())

		deleted, err := s.Delete(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, after, deleted)
		assert.Empty(t, srv.Links())
	})
}

func TestMissingLinkIsNotFoundWithoutWrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, srv *neo4jtest.Server, s store) {
		ctx := context.Background()
		srv.Put(links.Point[uint64](1))
		start := len(srv.Statements())

		_, _, err := s.Update(ctx, 5, 1, 1)
		var nf *links.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, uint64(5), nf.ID)

		_, err = s.Delete(ctx, 5)
		assert.ErrorIs(t, err, links.ErrNotFound)

		for _, stmt := range srv.Statements()[start:] {
			assert.Equal(t, stmtGet, stmt, "only the existence read is sent")
		}
		assert.Equal(t, []links.Link[uint64]{links.Point[uint64](1)}, srv.Links())
		assert.Zero(t, srv.OpenTransactions())
	})
}

func TestInvalidPatternSendsNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, srv *neo4jtest.Server, s store) {
		requests := srv.Requests()
		_, err := s.Each(context.Background(), []uint64{1, 2}, func(links.Link[uint64]) links.Flow { return links.Continue })
		assert.ErrorIs(t, err, links.ErrInvalidConstraintShape)
		_, err = s.Count(context.Background(), []uint64{1, 2, 3, 4})
		assert.ErrorIs(t, err, links.ErrInvalidConstraintShape)
		assert.Equal(t, requests, srv.Requests())
	})
}

// TestRemoteMatchesLocal stores the same links remotely and in the local
// engine and checks both select the same set for every pattern shape.
func TestRemoteMatchesLocal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, srv *neo4jtest.Server, s store) {
		ctx := context.Background()
		engine, err := storage.NewUnitedVolatile[uint64]()
		require.NoError(t, err)
		local := storage.NewLocal[uint64]("local", engine)
		defer local.Close()

		for _, st := range [][2]uint64{{1, 1}, {1, 2}, {2, 1}, {2, 2}, {1, 2}, {3, 3}} {
			_, err := s.Create(ctx, st[0], st[1])
			require.NoError(t, err)
			_, err = local.Create(ctx, st[0], st[1])
			require.NoError(t, err)
		}

		patterns := [][]uint64{
			nil, {w}, {3}, {9}, {w, w, w}, {2, w, w},
			{w, 1, w}, {w, w, 2}, {w, 1, 2}, {5, 1, 2}, {5, 2, 2}, {w, 4, w},
		}
		for _, pattern := range patterns {
			remote, err := links.Collect[uint64](ctx, s, pattern)
			require.NoError(t, err)
			want, err := links.Collect[uint64](ctx, local, pattern)
			require.NoError(t, err)
			assert.ElementsMatch(t, want, remote, "pattern %v", pattern)

			n, err := s.Count(ctx, pattern)
			require.NoError(t, err)
			assert.Equal(t, uint64(len(want)), n, "count %v", pattern)
		}
	})
}

func TestEachBreak(t *testing.T) {
	forEachBackend(t, func(t *testing.T, srv *neo4jtest.Server, s store) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			_, err := s.CreatePoint(ctx)
			require.NoError(t, err)
		}
		seen := 0
		flow, err := s.Each(ctx, nil, func(links.Link[uint64]) links.Flow {
			seen++
			return links.Break
		})
		require.NoError(t, err)
		assert.Equal(t, links.Break, flow)
		assert.Equal(t, 1, seen)
	})
}

func TestForkAndUnfork(t *testing.T) {
	forEachBackend(t, func(t *testing.T, srv *neo4jtest.Server, s store) {
		ctx := context.Background()
		srv.Put(links.Point[uint64](7))

		require.NoError(t, s.Fork(ctx))
		assert.Empty(t, srv.Links(), "residue is purged")
		p, err := s.CreatePoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), p.ID)

		require.NoError(t, s.Unfork(ctx))
		require.NoError(t, s.Unfork(ctx))
		assert.Empty(t, srv.Links())
		highest, err := s.MaxIdentity(ctx)
		require.NoError(t, err)
		assert.Zero(t, highest)

		p, err = s.CreatePoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), p.ID, "identities restart after teardown")
	})
}

func TestTransactionCommitsEveryOperation(t *testing.T) {
	srv := neo4jtest.NewServer()
	defer srv.Close()
	ctx := context.Background()

	tx, err := ConnectTransaction[uint64](ctx, Options{URI: srv.URI()})
	require.NoError(t, err)
	p, err := tx.CreatePoint(ctx)
	require.NoError(t, err)
	_, _, err = tx.Update(ctx, p.ID, 2, 3)
	require.NoError(t, err)

	assert.Zero(t, srv.OpenTransactions())
	assert.Equal(t, []links.Link[uint64]{{ID: 1, Source: 2, Target: 3}}, srv.Links())
}

func TestSmallIdentifierCapacity(t *testing.T) {
	srv := neo4jtest.NewServer()
	defer srv.Close()
	srv.Put(links.Point[uint64](254))

	c, err := Connect[uint8](context.Background(), Options{URI: srv.URI()})
	require.NoError(t, err)
	_, err = c.CreatePoint(context.Background())
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, uint64(255), c.Allocator().Peek())
}

func TestBoltIntegration(t *testing.T) {
	uri := os.Getenv("NEO4J_BOLT_URI")
	if uri == "" {
		t.Skip("NEO4J_BOLT_URI not set")
	}
	user := os.Getenv("NEO4J_USER")
	if user == "" {
		user = "neo4j"
	}
	password := os.Getenv("NEO4J_PASSWORD")
	if password == "" {
		password = "password"
	}
	ctx := context.Background()

	b, err := ConnectBolt[uint64](ctx, BoltOptions{URI: uri, User: user, Password: password})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Fork(ctx))
	defer b.Unfork(ctx)

	p, err := b.CreatePoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.ID)
	got, err := links.Collect[uint64](ctx, b, []uint64{w, p.ID, w})
	require.NoError(t, err)
	assert.Equal(t, []links.Link[uint64]{p}, got)

	_, err = b.Delete(ctx, 999)
	assert.ErrorIs(t, err, links.ErrNotFound)
}

func TestBoltErrorMapping(t *testing.T) {
	err := boltError("bolt://x", assert.AnError)
	assert.True(t, wire.IsTransport(err))
	assert.True(t, strings.Contains(err.Error(), "bolt://x"))
}

func TestValuesAboveInt64SendNothing(t *testing.T) {
	const big = uint64(1) << 63
	forEachBackend(t, func(t *testing.T, srv *neo4jtest.Server, s store) {
		ctx := context.Background()
		_, err := s.CreatePoint(ctx)
		require.NoError(t, err)
		requests := srv.Requests()

		_, err = s.Create(ctx, big, 1)
		assert.ErrorIs(t, err, links.ErrOutOfRange)
		_, err = s.Create(ctx, 1, big)
		assert.ErrorIs(t, err, links.ErrOutOfRange)
		_, _, err = s.Update(ctx, 1, 1, big)
		assert.ErrorIs(t, err, links.ErrOutOfRange)
		_, err = s.Each(ctx, []uint64{w, big, w}, func(links.Link[uint64]) links.Flow { return links.Continue })
		assert.ErrorIs(t, err, links.ErrOutOfRange)
		_, err = s.Count(ctx, []uint64{big})
		assert.ErrorIs(t, err, links.ErrOutOfRange)

		_, found, err := s.Get(ctx, big)
		require.NoError(t, err)
		assert.False(t, found)
		_, _, err = s.Update(ctx, big, 1, 1)
		assert.ErrorIs(t, err, links.ErrNotFound)
		_, err = s.Delete(ctx, big)
		assert.ErrorIs(t, err, links.ErrNotFound)
		assert.Equal(t, requests, srv.Requests())

		all, err := links.Collect[uint64](ctx, s, nil)
		require.NoError(t, err)
		assert.Equal(t, []links.Link[uint64]{links.Point[uint64](1)}, all)
		p, err := s.CreatePoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), p.ID, "rejected creates allocate nothing")
	})
}

var scenarios = []struct {
	name string
	run  func(t *testing.T, ctx context.Context, s links.Store[uint64])
}{
	{"delete the last of ten points", func(t *testing.T, ctx context.Context, s links.Store[uint64]) {
		for i := uint64(1); i <= 10; i++ {
			p, err := s.CreatePoint(ctx)
			require.NoError(t, err)
			require.Equal(t, links.Point(i), p)
		}
		deleted, err := s.Delete(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, links.Point[uint64](10), deleted)

		got, err := links.Collect[uint64](ctx, s, []uint64{10, w, w})
		require.NoError(t, err)
		assert.Empty(t, got)
		n, err := s.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(9), n)
	}},
	{"update reads back", func(t *testing.T, ctx context.Context, s links.Store[uint64]) {
		for i := 0; i < 3; i++ {
			_, err := s.CreatePoint(ctx)
			require.NoError(t, err)
		}
		before, after, err := s.Update(ctx, 2, 5, 7)
		require.NoError(t, err)
		assert.Equal(t, links.Point[uint64](2), before)
		assert.Equal(t, links.Link[uint64]{ID: 2, Source: 5, Target: 7}, after)

		got, err := links.Collect[uint64](ctx, s, []uint64{2})
		require.NoError(t, err)
		assert.Equal(t, []links.Link[uint64]{after}, got)
		l, found, err := s.Get(ctx, 2)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, after, l)
	}},
}

// TestScenarios runs the same operation sequences on the remote backends
// and on every local variant.
func TestScenarios(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			forEachBackend(t, func(t *testing.T, _ *neo4jtest.Server, s store) {
				sc.run(t, context.Background(), s)
			})
			for _, v := range storage.Variants() {
				t.Run(v.Name, func(t *testing.T) {
					local, err := v.Open(t.TempDir())
					require.NoError(t, err)
					defer local.Close()
					sc.run(t, context.Background(), local)
				})
			}
		})
	}
}
