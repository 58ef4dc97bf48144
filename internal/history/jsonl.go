package history

import (
	"context"
	"sync"

	"github.com/Iron-Ham/foreman/internal/coordinator"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/statefile"
)

// JSONLStore appends reports to a JSON Lines file.
type JSONLStore struct {
	mu     sync.Mutex
	path   string
	closed bool
}

// NewJSONLStore returns a store writing to path. The file is created on
// the first Append.
func NewJSONLStore(path string) *JSONLStore {
	return &JSONLStore{path: path}
}

// Path returns the file the store writes to.
func (s *JSONLStore) Path() string {
	return s.path
}

// Append implements Store.
func (s *JSONLStore) Append(ctx context.Context, r *coordinator.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrStoreClosed
	}
	if err := statefile.AppendJSONL(s.path, r); err != nil {
		return errors.NewStoreError("append report", err).WithPath(s.path)
	}
	return nil
}

// List implements Store.
func (s *JSONLStore) List(ctx context.Context, limit int) ([]*coordinator.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrStoreClosed
	}
	reports, err := statefile.ReadJSONL[*coordinator.Report](s.path)
	if err != nil {
		return nil, errors.NewStoreError("read history", errors.Join(errors.ErrStateCorrupted, err)).WithPath(s.path)
	}
	return tail(reports, limit), nil
}

// Latest implements Store.
func (s *JSONLStore) Latest(ctx context.Context) (*coordinator.Report, error) {
	reports, err := s.List(ctx, 1)
	if err != nil || len(reports) == 0 {
		return nil, err
	}
	return reports[0], nil
}

// Count implements Store.
func (s *JSONLStore) Count(ctx context.Context) (int, error) {
	reports, err := s.List(ctx, 0)
	return len(reports), err
}

// Close implements Store.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
