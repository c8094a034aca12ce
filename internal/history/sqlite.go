package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS history (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	url          TEXT NOT NULL,
	captured_at  INTEGER NOT NULL,
	artifact_ref TEXT NOT NULL
)`

type sqliteStore struct {
	db     *sql.DB
	policy Policy
}

// NewSQLiteStore opens or creates the history database at path.
func NewSQLiteStore(ctx context.Context, path string, policy Policy) (Store, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// a single connection serializes Add calls from concurrent composers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &sqliteStore{db: db, policy: policy}, nil
}

func (s *sqliteStore) Add(ctx context.Context, entry Entry) ([]Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO history (id, url, captured_at, artifact_ref) VALUES (?, ?, ?, ?)",
		entry.ID, entry.URL, entry.CapturedAt.UnixNano(), entry.ArtifactRef,
	); err != nil {
		return nil, fmt.Errorf("failed to insert history entry: %w", err)
	}

	entries, err := list(ctx, tx)
	if err != nil {
		return nil, err
	}

	_, evicted := s.policy.Retain(entries)
	for _, e := range evicted {
		if _, err := tx.ExecContext(ctx, "DELETE FROM history WHERE id = ?", e.ID); err != nil {
			return nil, fmt.Errorf("failed to evict history entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit history entry: %w", err)
	}
	return evicted, nil
}

func (s *sqliteStore) List(ctx context.Context) ([]Entry, error) {
	return list(ctx, s.db)
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func list(ctx context.Context, q querier) ([]Entry, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, url, captured_at, artifact_ref FROM history ORDER BY seq DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var capturedAt int64
		if err := rows.Scan(&e.ID, &e.URL, &capturedAt, &e.ArtifactRef); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.CapturedAt = time.Unix(0, capturedAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entries, nil
}
