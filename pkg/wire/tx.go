package wire

import (
	"context"
	"net/url"
	"strings"
)

// Tx is an open explicit transaction. It is not safe for concurrent use.
type Tx struct {
	c          *Client
	path       string
	commitPath string
	done       bool
}

// Begin opens an explicit transaction, running statements in it.
func (c *Client) Begin(ctx context.Context, statements ...Statement) (*Tx, *Response, error) {
	resp, err := c.post(ctx, "/db/"+c.database+"/tx", statements...)
	if err != nil {
		return nil, nil, err
	}
	if resp.Commit == "" {
		return nil, nil, malformed("begin: reply carries no commit location")
	}
	commitPath, err := pathOf(resp.Commit)
	if err != nil {
		return nil, nil, err
	}
	tx := &Tx{
		c:          c,
		path:       strings.TrimSuffix(commitPath, "/commit"),
		commitPath: commitPath,
	}
	return tx, resp, nil
}

// Path is the transaction resource, e.g. /db/neo4j/tx/12.
func (tx *Tx) Path() string { return tx.path }

// Run executes statements inside the transaction.
func (tx *Tx) Run(ctx context.Context, statements ...Statement) (*Response, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	return tx.c.post(ctx, tx.path, statements...)
}

// Commit runs statements and commits the transaction.
func (tx *Tx) Commit(ctx context.Context, statements ...Statement) (*Response, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	tx.done = true
	return tx.c.post(ctx, tx.commitPath, statements...)
}

// Rollback discards the transaction. Rolling back a finished transaction
// is a no-op.
func (tx *Tx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	rep, err := tx.c.roundTrip(ctx, "DELETE", tx.path, nil)
	if err != nil {
		return err
	}
	_, err = decodeResponse(rep)
	return err
}

func pathOf(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", malformed("commit location %q: %v", location, err)
	}
	if u.Path == "" || !strings.HasSuffix(u.Path, "/commit") {
		return "", malformed("commit location %q has no commit path", location)
	}
	return u.Path, nil
}
