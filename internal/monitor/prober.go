package monitor

import (
	"context"
	"sync"
	"time"
)

// Prober reports when a worker was last heard from. A zero time with a nil
// error means the worker has never made contact. An error means the probe
// itself failed.
type Prober interface {
	LastContact(ctx context.Context, workerID string) (time.Time, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, workerID string) (time.Time, error)

// LastContact implements Prober.
func (f ProberFunc) LastContact(ctx context.Context, workerID string) (time.Time, error) {
	return f(ctx, workerID)
}

// StaticProber answers from in-memory tables that callers fill with Touch
// and Fail. It is meant for tests.
type StaticProber struct {
	mu       sync.Mutex
	contacts map[string]time.Time
	errs     map[string]error
}

// NewStaticProber creates an empty StaticProber.
func NewStaticProber() *StaticProber {
	return &StaticProber{
		contacts: make(map[string]time.Time),
		errs:     make(map[string]error),
	}
}

// Touch records contact from the worker at t and clears any failure.
func (p *StaticProber) Touch(workerID string, t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contacts[workerID] = t
	delete(p.errs, workerID)
}

// Fail makes probes of the worker return err until the next Touch.
func (p *StaticProber) Fail(workerID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[workerID] = err
}

// LastContact implements Prober.
func (p *StaticProber) LastContact(_ context.Context, workerID string) (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.errs[workerID]; err != nil {
		return time.Time{}, err
	}
	return p.contacts[workerID], nil
}
