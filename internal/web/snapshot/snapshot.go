// Package snapshot persists fixture API contents as compound documents in a SQL
// database, so a served collection survives restarts.
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultTable is the table snapshots are kept in
const DefaultTable = "spine_snapshots"

// ErrNotFound is returned by Load when no snapshot exists under a name
var ErrNotFound = errors.New("snapshot not found")

// Store reads and writes named snapshots
type Store struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// Open opens the database named by dsn. postgres:// and postgresql:// URLs use the
// pgx driver; anything else is a SQLite path, optionally prefixed with sqlite://.
func Open(dsn string) (*sql.DB, error) {
	driver, source := Driver(dsn)
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return db, nil
}

// Driver returns the database/sql driver name and data source for dsn
func Driver(dsn string) (string, string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://")
	default:
		return "sqlite3", dsn
	}
}

// New creates a snapshot store on db, creating table if it does not exist. An empty
// table name selects DefaultTable.
func New(ctx context.Context, db *sql.DB, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	s := &Store{
		db:    db,
		table: pq.QuoteIdentifier(table),
		now:   time.Now,
	}

	if err := s.createTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create snapshot table: %w", err)
	}
	return s, nil
}

func (s *Store) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name VARCHAR(255) PRIMARY KEY,
			body TEXT NOT NULL,
			saved_at TIMESTAMP NOT NULL
		)
	`, s.table)

	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Save stores doc under name, replacing any previous snapshot
func (s *Store) Save(ctx context.Context, name string, doc []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, body, saved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET body = excluded.body, saved_at = excluded.saved_at
	`, s.table)

	if _, err := s.db.ExecContext(ctx, query, name, string(doc), s.now().UTC()); err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// Load returns the snapshot stored under name
func (s *Store) Load(ctx context.Context, name string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT body FROM %s WHERE name = $1`, s.table)

	var body string
	err := s.db.QueryRowContext(ctx, query, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	return []byte(body), nil
}

// Delete removes the snapshot stored under name
func (s *Store) Delete(ctx context.Context, name string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}
