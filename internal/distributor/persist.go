package distributor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/statefile"
	"github.com/Iron-Ham/foreman/internal/task"
)

// StateFileName is the task registry file inside the state directory.
const StateFileName = "tasks.json"

// persistedState is the serializable representation of the registry.
type persistedState struct {
	Tasks []*task.Task `json:"tasks"`
}

// SaveState writes the registry to dir. The write is atomic and happens
// under the state directory lock.
func (d *Distributor) SaveState(dir string) error {
	d.mu.Lock()
	state := persistedState{Tasks: make([]*task.Task, 0, len(d.order))}
	for _, id := range d.order {
		state.Tasks = append(state.Tasks, d.tasks[id].Clone())
	}
	d.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task state: %w", err)
	}

	target := filepath.Join(dir, StateFileName)
	err = statefile.WithLock(dir, func() error {
		return statefile.WriteAtomic(target, data)
	})
	if err != nil {
		return errors.NewStoreError("save task state", err).WithPath(target)
	}
	return nil
}

// LoadState restores a Distributor from dir. The options configure the
// returned Distributor exactly as they would for New.
func LoadState(dir string, opts ...Option) (*Distributor, error) {
	target := filepath.Join(dir, StateFileName)

	var data []byte
	err := statefile.WithLock(dir, func() error {
		var readErr error
		data, readErr = os.ReadFile(target)
		return readErr
	})
	if err != nil {
		return nil, errors.NewStoreError("read task state", err).WithPath(target)
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.NewStoreError("decode task state", errors.Join(errors.ErrStateCorrupted, err)).WithPath(target)
	}

	d := New(opts...)
	for _, t := range state.Tasks {
		if t == nil || t.ID == "" {
			continue
		}
		if _, dup := d.tasks[t.ID]; dup {
			continue
		}
		if t.Metadata == nil {
			t.Metadata = make(map[string]string)
		}
		d.tasks[t.ID] = t
		d.order = append(d.order, t.ID)
	}
	return d, nil
}

// Open loads the registry from dir, or returns an empty Distributor when no
// state has been saved yet.
func Open(dir string, opts ...Option) (*Distributor, error) {
	if _, err := os.Stat(filepath.Join(dir, StateFileName)); os.IsNotExist(err) {
		return New(opts...), nil
	}
	return LoadState(dir, opts...)
}
