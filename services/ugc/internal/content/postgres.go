package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the node table and the root node. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS ugc_nodes (
    seq        BIGSERIAL,
    id         UUID PRIMARY KEY,
    parent_id  UUID REFERENCES ugc_nodes(id) ON DELETE CASCADE,
    path       TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    node_type  TEXT NOT NULL,
    props      JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ugc_nodes_parent_seq_idx ON ugc_nodes (parent_id, seq);
CREATE INDEX IF NOT EXISTS ugc_nodes_type_idx ON ugc_nodes (node_type);
INSERT INTO ugc_nodes (id, parent_id, path, name, node_type)
VALUES ('00000000-0000-0000-0000-000000000000', NULL, '/', '', 'rep:root')
ON CONFLICT (path) DO NOTHING;
`

const uniqueViolation = "23505"

const nodeColumns = `id::text, COALESCE(parent_id::text, ''), path, name, node_type, props, created_at`

// PostgresStore persists the content tree in Postgres. Each session runs
// in its own transaction; Save commits it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by Postgres.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema applies Schema.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure ugc schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Do(ctx context.Context, fn func(Session) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	s := &pgSession{pool: p.pool, tx: tx}
	defer func() {
		s.closed = true
		// Rollback after a commit is a no-op.
		_ = s.tx.Rollback(context.WithoutCancel(ctx))
	}()
	return fn(s)
}

type pgSession struct {
	pool   *pgxpool.Pool
	tx     pgx.Tx
	closed bool
}

func (s *pgSession) check(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	return ctx.Err()
}

func (s *pgSession) queryOne(ctx context.Context, q string, arg any) (*Node, error) {
	n, err := scanNode(s.tx.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

func (s *pgSession) GetByID(ctx context.Context, id string) (*Node, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return s.queryOne(ctx, `SELECT `+nodeColumns+` FROM ugc_nodes WHERE id = $1`, id)
}

func (s *pgSession) GetNode(ctx context.Context, path string) (*Node, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.queryOne(ctx, `SELECT `+nodeColumns+` FROM ugc_nodes WHERE path = $1`, path)
}

func (s *pgSession) Exists(ctx context.Context, path string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	var ok bool
	err := s.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ugc_nodes WHERE path = $1)`, path).Scan(&ok)
	return ok, err
}

func (s *pgSession) CreateChild(ctx context.Context, parent *Node, name, typ string) (*Node, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	n := newNode(uuid.NewString(), parent.ID, childPath(parent.Path, name), name, typ, time.Now().UTC())
	const q = `INSERT INTO ugc_nodes (id, parent_id, path, name, node_type, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.tx.Exec(ctx, q, n.ID, n.ParentID, n.Path, n.Name, n.Type, n.Created)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("create %s: %w", n.Path, ErrExists)
		}
		return nil, fmt.Errorf("create %s: %w", n.Path, err)
	}
	return n, nil
}

func (s *pgSession) SetProperty(ctx context.Context, n *Node, key string, value any) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	v := normalizeValue(value)
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode property %s: %w", key, err)
	}
	const q = `UPDATE ugc_nodes SET props = props || jsonb_build_object($2::text, $3::jsonb) WHERE id = $1`
	tag, err := s.tx.Exec(ctx, q, n.ID, key, string(raw))
	if err != nil {
		return fmt.Errorf("set property %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	n.props[key] = v
	return nil
}

func (s *pgSession) ListChildren(ctx context.Context, parent *Node) ([]*Node, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.tx.Query(ctx, `SELECT `+nodeColumns+` FROM ugc_nodes WHERE parent_id = $1 ORDER BY seq`, parent.ID)
	if err != nil {
		return nil, err
	}
	return collectNodes(rows)
}

func collectNodes(rows pgx.Rows) ([]*Node, error) {
	defer rows.Close()
	var out []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *pgSession) FindByType(ctx context.Context, typ string) ([]*Node, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rows, err := s.tx.Query(ctx, `SELECT `+nodeColumns+` FROM ugc_nodes WHERE node_type = $1 ORDER BY seq`, typ)
	if err != nil {
		return nil, err
	}
	return collectNodes(rows)
}

func (s *pgSession) Remove(ctx context.Context, n *Node) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	tag, err := s.tx.Exec(ctx, `DELETE FROM ugc_nodes WHERE id = $1`, n.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgSession) ResolveSite(ctx context.Context, n *Node) (Site, error) {
	if err := s.check(ctx); err != nil {
		return Site{}, err
	}
	return resolveSite(ctx, s, n)
}

// Save commits the pending changes and opens a fresh transaction so the
// session stays usable for follow-up reads.
func (s *pgSession) Save(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := s.tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("save: %w", ErrExists)
		}
		return fmt.Errorf("save: %w", err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reopen session: %w", err)
	}
	s.tx = tx
	return nil
}

func scanNode(row pgx.Row) (*Node, error) {
	var (
		n     Node
		props []byte
	)
	if err := row.Scan(&n.ID, &n.ParentID, &n.Path, &n.Name, &n.Type, &props, &n.Created); err != nil {
		return nil, err
	}
	n.props = make(map[string]any)
	if len(props) > 0 {
		dec := json.NewDecoder(bytes.NewReader(props))
		dec.UseNumber()
		if err := dec.Decode(&n.props); err != nil {
			return nil, fmt.Errorf("decode props of %s: %w", n.Path, err)
		}
	}
	n.Created = n.Created.UTC()
	return &n, nil
}
