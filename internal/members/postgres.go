package members

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the members table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS members (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    email      TEXT NOT NULL,
    role       TEXT NOT NULL DEFAULT 'user',
    status     TEXT NOT NULL DEFAULT 'active',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_members_email ON members(lower(email));
CREATE INDEX IF NOT EXISTS idx_members_role ON members(role);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB

	// pool is set when the store owns its connections (see [Open]).
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store on db. The caller is responsible for
// calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to the database at dsn, verifies the connection and runs
// [PostgresStore.Migrate]. Release the pool with [PostgresStore.Close].
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("members: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("members: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("members: ping: %w", err)
	}

	s := &PostgresStore{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Ping checks the connection. Stores built with [NewPostgresStore] report
// healthy without a round trip.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool opened by [Open]. It is a no-op otherwise.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("members: migrate: %w", err)
	}
	return nil
}

const columns = `id, name, email, role, status, created_at`

// List implements [Store]. The sort column is checked against [SortColumns]
// before it is interpolated into the query.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Member, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		args = append(args, f.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", n, n))
	}

	var b strings.Builder
	b.WriteString("SELECT " + columns + " FROM members")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, id %s", f.Sort, dir, dir)
	args = append(args, f.Limit, f.Offset)
	fmt.Fprintf(&b, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("members: list: %w", err)
	}
	defer rows.Close()

	out := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Role, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("members: list scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("members: list: %w", err)
	}
	return out, nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id string) (*Member, error) {
	const query = `SELECT ` + columns + ` FROM members WHERE id = $1`
	m, err := scanOne(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("members: get %q: %w", id, err)
	}
	return m, nil
}

// Create implements [Store].
func (s *PostgresStore) Create(ctx context.Context, m *Member) error {
	if err := prepare(m); err != nil {
		return err
	}
	m.ID = uuid.NewString()

	const query = `
		INSERT INTO members (id, name, email, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query, m.ID, m.Name, m.Email, m.Role, m.Status).Scan(&m.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("members: create: %w", err)
	}
	return nil
}

// Update implements [Store]. Only non-empty patch fields are written.
func (s *PostgresStore) Update(ctx context.Context, id string, p Patch) (*Member, error) {
	if p.IsEmpty() {
		m, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, ErrNotFound
		}
		return m, nil
	}

	const query = `
		UPDATE members SET
			name   = COALESCE(NULLIF($2, ''), name),
			email  = COALESCE(NULLIF($3, ''), email),
			role   = COALESCE(NULLIF($4, ''), role),
			status = COALESCE(NULLIF($5, ''), status)
		WHERE id = $1
		RETURNING ` + columns

	m, err := scanOne(s.db.QueryRow(ctx, query, id, p.Name, p.Email, p.Role, p.Status))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrNotFound
		case isDuplicateKeyError(err):
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("members: update %q: %w", id, err)
	}
	return m, nil
}

// Delete implements [Store].
func (s *PostgresStore) Delete(ctx context.Context, id string) (*Member, error) {
	const query = `DELETE FROM members WHERE id = $1 RETURNING ` + columns
	m, err := scanOne(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("members: delete %q: %w", id, err)
	}
	return m, nil
}

func scanOne(row pgx.Row) (*Member, error) {
	var m Member
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Role, &m.Status, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// escapeLike escapes the LIKE wildcards in s.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
