package neo4jtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/linkbench/pkg/links"
	"github.com/orneryd/linkbench/pkg/wire"
)

func client(t *testing.T, s *Server) *wire.Client {
	t.Helper()
	c, err := wire.NewFromURI(s.URI(), "neo4j", "password", "")
	require.NoError(t, err)
	return c
}

func TestServer_CreateAndMatch(t *testing.T) {
	for name, opts := range map[string][]Option{"content-length": nil, "chunked": {WithChunked()}} {
		t.Run(name, func(t *testing.T) {
			s := NewServer(opts...)
			defer s.Close()
			c := client(t, s)
			ctx := context.Background()

			_, err := c.Execute(ctx, "CREATE (l:Link {id: $id, source: $source, target: $target})",
				map[string]any{"id": 1, "source": 2, "target": 3})
			require.NoError(t, err)
			_, err = c.Execute(ctx, "CREATE (l:Link {id: $id, source: $id, target: $id})", map[string]any{"id": 2})
			require.NoError(t, err)

			resp, err := c.Execute(ctx, "MATCH (l:Link) WHERE l.source = $source RETURN l.id AS id, l.source AS source, l.target AS target ORDER BY l.id",
				map[string]any{"source": 2})
			require.NoError(t, err)
			require.Len(t, resp.Rows(), 2)
			id, _ := resp.Rows()[0].Int(0)
			assert.Equal(t, int64(1), id)
			id, _ = resp.Rows()[1].Int(0)
			assert.Equal(t, int64(2), id)

			resp, err = c.Execute(ctx, "MATCH (l:Link) RETURN count(l) AS count", nil)
			require.NoError(t, err)
			n, _ := resp.Scalar()
			assert.Equal(t, int64(2), n)

			resp, err = c.Execute(ctx, "MATCH (l:Link) RETURN COALESCE(max(l.id), 0) AS max_id", nil)
			require.NoError(t, err)
			n, _ = resp.Scalar()
			assert.Equal(t, int64(2), n)

			assert.Equal(t, []links.Link[uint64]{{ID: 1, Source: 2, Target: 3}, links.Point[uint64](2)}, s.Links())
			assert.Equal(t, 5, s.Requests())
		})
	}
}

func TestServer_Errors(t *testing.T) {
	s := NewServer()
	defer s.Close()
	c := client(t, s)
	ctx := context.Background()

	_, err := c.Execute(ctx, "RETURN 1", nil)
	var qe *wire.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "Neo.ClientError.Statement.SyntaxError", qe.Code)

	s.FailNext("Neo.TransientError.General.DatabaseUnavailable", "down")
	_, err = c.Execute(ctx, "MATCH (l:Link) DETACH DELETE l", nil)
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "Neo.TransientError.General.DatabaseUnavailable", qe.Code)

	_, err = c.Execute(ctx, "CREATE (l:Link {id: $id, source: $source, target: $target})", map[string]any{"id": 1})
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "Neo.ClientError.Statement.ParameterMissing", qe.Code)

	s.Put(links.Point[uint64](1))
	_, err = c.Execute(ctx, "CREATE (l:Link {id: $id, source: $id, target: $id})", map[string]any{"id": 1})
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "Neo.ClientError.Schema.ConstraintValidationFailed", qe.Code)

	assert.Len(t, s.Statements(), 4)
}

func TestServer_Auth(t *testing.T) {
	s := NewServer(WithAuth("neo4j", "secret"))
	defer s.Close()

	_, err := client(t, s).Execute(context.Background(), "MATCH (l:Link) RETURN count(l) AS count", nil)
	var qe *wire.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "Neo.ClientError.Security.Unauthorized", qe.Code)

	ok, err := wire.NewFromURI(s.URI(), "neo4j", "secret", "")
	require.NoError(t, err)
	_, err = ok.Execute(context.Background(), "MATCH (l:Link) RETURN count(l) AS count", nil)
	assert.NoError(t, err)
}

func TestServer_Transactions(t *testing.T) {
	s := NewServer()
	defer s.Close()
	c := client(t, s)
	ctx := context.Background()

	tx, _, err := c.Begin(ctx, wire.Statement{Statement: "CREATE (l:Link {id: $id, source: $id, target: $id})", Parameters: map[string]any{"id": 7}})
	require.NoError(t, err)
	assert.Equal(t, 1, s.OpenTransactions())

	_, err = tx.Run(ctx, wire.Statement{Statement: "MATCH (l:Link {id: $id}) SET l.source = $source, l.target = $target",
		Parameters: map[string]any{"id": 7, "source": 1, "target": 1}})
	require.NoError(t, err)
	_, err = tx.Commit(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.OpenTransactions())
	assert.Equal(t, []links.Link[uint64]{{ID: 7, Source: 1, Target: 1}}, s.Links())

	tx, _, err = c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
	assert.Zero(t, s.OpenTransactions())

	s.Reset()
	assert.Empty(t, s.Links())
	assert.Zero(t, s.Requests())
}
