package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	_ "modernc.org/sqlite"

	"github.com/Iron-Ham/foreman/internal/coordinator"
	"github.com/Iron-Ham/foreman/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  cycle INTEGER NOT NULL,
  ts INTEGER NOT NULL,
  mode TEXT NOT NULL,
  body TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_ts ON reports(ts);
`

// SQLiteStore keeps reports in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.NewStoreError("create history directory", err).WithPath(path)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.NewStoreError("open history database", err).WithPath(path)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, errors.NewStoreError("initialize history database", err).WithPath(path)
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	for _, q := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, r *coordinator.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (cycle, ts, mode, body) VALUES (?, ?, ?, ?)`,
		int64(r.Cycle), r.Timestamp.UnixNano(), string(r.Mode), string(body),
	)
	if err != nil {
		return errors.NewStoreError("insert report", err).WithPath(s.path)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*coordinator.Report, error) {
	q := `SELECT body FROM reports ORDER BY ts DESC, id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.NewStoreError("query reports", err).WithPath(s.path)
	}
	defer func() { _ = rows.Close() }()

	var out []*coordinator.Report
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errors.NewStoreError("scan report", err).WithPath(s.path)
		}
		var r coordinator.Report
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, errors.NewStoreError("decode report", errors.Join(errors.ErrStateCorrupted, err)).WithPath(s.path)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("iterate reports", err).WithPath(s.path)
	}
	slices.Reverse(out)
	return out, nil
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context) (*coordinator.Report, error) {
	reports, err := s.List(ctx, 1)
	if err != nil || len(reports) == 0 {
		return nil, err
	}
	return reports[0], nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n); err != nil {
		return 0, errors.NewStoreError("count reports", err).WithPath(s.path)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
