package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for a key/value storage root. One row per (segment, path) blob plus
// a singleton table for the aggregate index.
const schema = `
CREATE TABLE IF NOT EXISTS blobs (
    segment  TEXT NOT NULL,
    path     TEXT NOT NULL,
    content  BLOB NOT NULL,
    PRIMARY KEY (segment, path)
);

CREATE TABLE IF NOT EXISTS singletons (
    key   TEXT PRIMARY KEY,
    data  BLOB NOT NULL
);
`

// SQLite implements Backend on a single-file SQLite database, for
// environments that offer a key/value database rather than a filesystem.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (or creates) a database-backed root at path.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	return &SQLite{db: db, path: path}, nil
}

// SQLiteAvailable reports whether a database-backed root can live at path.
// It probes the parent directory the same way the filesystem backend does:
// the driver itself creates the file lazily, so a writable directory is the
// actual requirement.
func SQLiteAvailable(path string) bool {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".gitvfs-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return false
	}
	os.Remove(probe)
	return true
}

// SQLiteRoots returns the database files under dir, by the conventional
// ".db" suffix.
func SQLiteRoots(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.db"))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list roots: %w", err)
	}
	roots := make([]string, 0, len(matches))
	for _, match := range matches {
		roots = append(roots, filepath.Base(match))
	}
	sort.Strings(roots)
	return roots, nil
}

// DestroySQLite removes a database-backed root, including WAL side files.
func DestroySQLite(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("sqlite: destroy root: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

func (s *SQLite) Read(ctx context.Context, seg Segment, path string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM blobs WHERE segment = ? AND path = ?`,
		string(seg), path,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: read %s/%s: %w", seg, path, err)
	}
	return content, nil
}

func (s *SQLite) Write(ctx context.Context, seg Segment, path string, content []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (segment, path, content) VALUES (?, ?, ?)
		 ON CONFLICT (segment, path) DO UPDATE SET content = excluded.content`,
		string(seg), path, content,
	)
	if err != nil {
		return fmt.Errorf("sqlite: write %s/%s: %w", seg, path, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, seg Segment, path string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM blobs WHERE segment = ? AND path = ?`,
		string(seg), path,
	)
	if err != nil {
		return fmt.Errorf("sqlite: delete %s/%s: %w", seg, path, err)
	}
	return nil
}

func (s *SQLite) DeleteAll(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", path, err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, seg Segment, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM blobs WHERE segment = ? ORDER BY path`,
		string(seg),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list %s: %w", seg, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("sqlite: list %s: %w", seg, err)
		}
		// Component-aware prefix filtering happens here rather than in
		// SQL: LIKE has no notion of path boundaries.
		if matchesPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list %s: %w", seg, err)
	}
	return paths, nil
}

func (s *SQLite) ReadIndex(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM singletons WHERE key = ?`, IndexKey,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: read index: %w", err)
	}
	return data, nil
}

func (s *SQLite) WriteIndex(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO singletons (key, data) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET data = excluded.data`,
		IndexKey, data,
	)
	if err != nil {
		return fmt.Errorf("sqlite: write index: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// String identifies the root for log output.
func (s *SQLite) String() string {
	return "sqlite:" + strings.TrimSuffix(s.path, filepath.Ext(s.path))
}
