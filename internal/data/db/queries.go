package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries runs the node statements against a connection or transaction.
type Queries struct {
	db DBTX
}

// New binds the queries to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx binds the queries to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Node is one row of the nodes table. A null Value is a tombstone.
type Node struct {
	Path   string
	Parent string
	Value  sql.NullString
	Seq    int64
}

const getNode = `SELECT path, parent, value, seq FROM nodes WHERE path = ?`

// GetNode returns the node at path or sql.ErrNoRows.
func (q *Queries) GetNode(ctx context.Context, path string) (Node, error) {
	row := q.db.QueryRowContext(ctx, getNode, path)
	var n Node
	err := row.Scan(&n.Path, &n.Parent, &n.Value, &n.Seq)
	return n, err
}

const upsertNode = `
INSERT INTO nodes (path, parent, value, seq) VALUES (?, ?, ?, ?)
ON CONFLICT (path) DO UPDATE SET value = excluded.value, seq = excluded.seq`

// UpsertNodeParams are the arguments of UpsertNode.
type UpsertNodeParams struct {
	Path   string
	Parent string
	Value  sql.NullString
	Seq    int64
}

// UpsertNode writes a node row.
func (q *Queries) UpsertNode(ctx context.Context, arg UpsertNodeParams) error {
	_, err := q.db.ExecContext(ctx, upsertNode, arg.Path, arg.Parent, arg.Value, arg.Seq)
	return err
}

const reserveSeq = `UPDATE meta SET value = value + ? WHERE key = 'seq' RETURNING value`

// ReserveSeq advances the write sequence by n and returns its new value. The
// reserved numbers are (value-n, value].
func (q *Queries) ReserveSeq(ctx context.Context, n int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, reserveSeq, n)
	var v int64
	err := row.Scan(&v)
	return v, err
}

const currentSeq = `SELECT value FROM meta WHERE key = 'seq'`

// CurrentSeq returns the last reserved sequence number.
func (q *Queries) CurrentSeq(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, currentSeq)
	var v int64
	err := row.Scan(&v)
	return v, err
}

const listNodesSince = `SELECT path, parent, value, seq FROM nodes WHERE seq > ? ORDER BY seq`

// ListNodesSince returns the nodes written after seq, in write order.
func (q *Queries) ListNodesSince(ctx context.Context, seq int64) ([]Node, error) {
	return q.list(ctx, listNodesSince, seq)
}

const listChildren = `SELECT path, parent, value, seq FROM nodes WHERE parent = ? ORDER BY path`

// ListChildren returns the child nodes of parent ordered by path.
func (q *Queries) ListChildren(ctx context.Context, parent string) ([]Node, error) {
	return q.list(ctx, listChildren, parent)
}

func (q *Queries) list(ctx context.Context, query string, args ...any) ([]Node, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.Path, &n.Parent, &n.Value, &n.Seq); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
