package history

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/foreman/internal/coordinator"
)

// Backend names accepted by Open.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Default file names inside the state directory.
const (
	DefaultJSONLFile  = "history.jsonl"
	DefaultSQLiteFile = "history.db"
)

// Store persists coordination reports.
type Store interface {
	// Append stores one report.
	Append(ctx context.Context, r *coordinator.Report) error

	// List returns up to limit of the most recent reports, oldest first.
	// A non-positive limit returns everything.
	List(ctx context.Context, limit int) ([]*coordinator.Report, error)

	// Latest returns the newest report, or nil when none is stored.
	Latest(ctx context.Context) (*coordinator.Report, error)

	// Count returns the number of stored reports.
	Count(ctx context.Context) (int, error)

	// Close releases the store.
	Close() error
}

var (
	_ Store = (*JSONLStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open creates the store for backend. An empty path selects the default
// file for the backend inside stateDir.
func Open(backend, path, stateDir string) (Store, error) {
	switch strings.ToLower(backend) {
	case BackendJSONL, "":
		if path == "" {
			path = filepath.Join(stateDir, DefaultJSONLFile)
		}
		return NewJSONLStore(path), nil
	case BackendSQLite:
		if path == "" {
			path = filepath.Join(stateDir, DefaultSQLiteFile)
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown history backend %q (valid: %s, %s)", backend, BackendJSONL, BackendSQLite)
	}
}

// tail returns the last limit reports.
func tail(reports []*coordinator.Report, limit int) []*coordinator.Report {
	if limit > 0 && len(reports) > limit {
		return reports[len(reports)-limit:]
	}
	return reports
}
