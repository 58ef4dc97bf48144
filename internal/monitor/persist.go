package monitor

import (
	"path/filepath"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/statefile"
)

// AlertsFileName is the alert log inside the state directory.
const AlertsFileName = "alerts.jsonl"

// SaveAlerts writes the alert log to dir.
func (m *Monitor) SaveAlerts(dir string) error {
	m.mu.Lock()
	snapshot := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		snapshot = append(snapshot, *a)
	}
	m.mu.Unlock()

	target := filepath.Join(dir, AlertsFileName)
	err := statefile.WithLock(dir, func() error {
		return statefile.WriteJSONL(target, snapshot)
	})
	if err != nil {
		return errors.NewStoreError("save alerts", err).WithPath(target)
	}
	return nil
}

// LoadAlerts replaces the alert log with the one saved in dir. A missing
// log leaves the monitor with no alerts.
func (m *Monitor) LoadAlerts(dir string) error {
	target := filepath.Join(dir, AlertsFileName)

	var loaded []Alert
	err := statefile.WithLock(dir, func() error {
		var readErr error
		loaded, readErr = statefile.ReadJSONL[Alert](target)
		return readErr
	})
	if err != nil {
		return errors.NewStoreError("load alerts", err).WithPath(target)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = m.alerts[:0]
	clear(m.byID)
	clear(m.open)
	clear(m.raisedUnder)
	clear(m.handled)
	for i := range loaded {
		a := &loaded[i]
		if a.ID == "" {
			continue
		}
		if _, dup := m.byID[a.ID]; dup {
			continue
		}
		m.alerts = append(m.alerts, a)
		m.byID[a.ID] = a
		if !a.Resolved {
			m.open[a.key()] = a
		}
	}
	return nil
}
