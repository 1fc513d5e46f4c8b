package bookmark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// SQLite driver registration.
	_ "github.com/mattn/go-sqlite3"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS bookmarks (
	name       TEXT PRIMARY KEY,
	target     TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS bookmark_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	from_id    TEXT,
	to_id      TEXT,
	created_at TEXT NOT NULL
);
`

// SQLite is a bookmark service persisted in a SQLite database.
// Every successful move or delete is appended to bookmark_log.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the bookmark database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create bookmark db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open bookmark db: %w", err)
	}

	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(sqliteSchema)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to initialize bookmark schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get implements Service.
func (s *SQLite) Get(ctx context.Context, name string) (changeset.ID, bool, error) {
	var target string

	err := s.db.QueryRowContext(ctx, `SELECT target FROM bookmarks WHERE name = ?`, name).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return changeset.ID{}, false, nil
	}

	if err != nil {
		return changeset.ID{}, false, fmt.Errorf("query bookmark: %w", err)
	}

	id, err := changeset.ParseID(target)
	if err != nil {
		return changeset.ID{}, false, err
	}

	return id, true, nil
}

// CompareAndSet implements Service.
func (s *SQLite) CompareAndSet(ctx context.Context, name string, expected *changeset.ID, target changeset.ID) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin bookmark tx: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	var res sql.Result

	var fromID sql.NullString

	if expected == nil {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO bookmarks (name, target, updated_at) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`,
			name, target.String(), now)
	} else {
		fromID = sql.NullString{String: expected.String(), Valid: true}
		res, err = tx.ExecContext(ctx,
			`UPDATE bookmarks SET target = ?, updated_at = ? WHERE name = ? AND target = ?`,
			target.String(), now, name, expected.String())
	}

	if err != nil {
		return false, fmt.Errorf("update bookmark: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update bookmark: %w", err)
	}

	if affected == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bookmark_log (name, from_id, to_id, created_at) VALUES (?, ?, ?, ?)`,
		name, fromID, target.String(), now)
	if err != nil {
		return false, fmt.Errorf("log bookmark move: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return false, fmt.Errorf("commit bookmark move: %w", err)
	}

	return true, nil
}

// Delete implements Service.
func (s *SQLite) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bookmark tx: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	var target string

	err = tx.QueryRowContext(ctx, `SELECT target FROM bookmarks WHERE name = ?`, name).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("query bookmark: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bookmark_log (name, from_id, to_id, created_at) VALUES (?, ?, NULL, ?)`,
		name, target, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("log bookmark delete: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit bookmark delete: %w", err)
	}

	return nil
}

// LogLen returns the number of recorded bookmark transitions for name.
func (s *SQLite) LogLen(ctx context.Context, name string) (int, error) {
	var count int

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookmark_log WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count bookmark log: %w", err)
	}

	return count, nil
}
