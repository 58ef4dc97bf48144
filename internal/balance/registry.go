package balance

import (
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/statefile"
)

// Registry maps workers to the capability tags they advertise. It is owned
// by the coordinator instance that created it.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]map[string]struct{})}
}

// UpdateCapabilities replaces the worker's capability tags. An empty tag
// list removes the worker.
func (r *Registry) UpdateCapabilities(workerID string, tags []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(tags) == 0 {
		delete(r.caps, workerID)
		return
	}
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	r.caps[workerID] = set
}

// Capabilities returns the worker's tags, sorted.
func (r *Registry) Capabilities(workerID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.caps[workerID]))
}

// Snapshot returns a copy of every registered worker's tags.
func (r *Registry) Snapshot() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.caps))
	for worker, set := range r.caps {
		out[worker] = slices.Sorted(maps.Keys(set))
	}
	return out
}

// Coverage returns how many of tags the worker advertises.
func (r *Registry) Coverage(workerID string, tags []string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.caps[workerID]
	n := 0
	for _, tag := range tags {
		if _, ok := set[tag]; ok {
			n++
		}
	}
	return n
}

// Load replaces the registry contents, typically from configuration or a
// persisted snapshot.
func (r *Registry) Load(snapshot map[string][]string) {
	r.mu.Lock()
	r.caps = make(map[string]map[string]struct{}, len(snapshot))
	r.mu.Unlock()
	for worker, tags := range snapshot {
		r.UpdateCapabilities(worker, tags)
	}
}

// CapabilitiesFileName is the registry file inside the state directory.
const CapabilitiesFileName = "capabilities.json"

// Save writes the registry to dir atomically under the state lock.
func (r *Registry) Save(dir string) error {
	data, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal capabilities")
	}
	path := filepath.Join(dir, CapabilitiesFileName)
	return statefile.WithLock(dir, func() error {
		return statefile.WriteAtomic(path, data)
	})
}

// LoadRegistry reads a registry saved by Save. A missing file yields an
// empty registry.
func LoadRegistry(dir string) (*Registry, error) {
	r := NewRegistry()
	path := filepath.Join(dir, CapabilitiesFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read capabilities")
	}
	var snapshot map[string][]string
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Wrap(err, "decode capabilities")
	}
	r.Load(snapshot)
	return r, nil
}
