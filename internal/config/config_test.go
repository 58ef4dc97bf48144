package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/foreman/internal/logging"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if got := cfg.Coordinator.Interval(); got != time.Minute {
		t.Errorf("Coordinator.Interval() = %v, want 1m", got)
	}
	if got := cfg.Coordinator.Backoff(); got != 5*time.Second {
		t.Errorf("Coordinator.Backoff() = %v, want 5s", got)
	}
	if cfg.Coordinator.Strategy != "priority_based" {
		t.Errorf("Coordinator.Strategy = %q, want %q", cfg.Coordinator.Strategy, "priority_based")
	}
	if cfg.Coordinator.MaxConcurrent != 3 {
		t.Errorf("Coordinator.MaxConcurrent = %d, want 3", cfg.Coordinator.MaxConcurrent)
	}
	if !cfg.Coordinator.AutoDistribute {
		t.Error("Coordinator.AutoDistribute should be true by default")
	}

	if got := cfg.Monitor.Capacity(); got != 8*time.Hour {
		t.Errorf("Monitor.Capacity() = %v, want 8h", got)
	}
	if cfg.Monitor.OverloadThreshold != 0.8 {
		t.Errorf("Monitor.OverloadThreshold = %v, want 0.8", cfg.Monitor.OverloadThreshold)
	}
	if got := cfg.Monitor.UnavailableTimeout(); got != 300*time.Second {
		t.Errorf("Monitor.UnavailableTimeout() = %v, want 5m", got)
	}
	if got := cfg.Monitor.DeadlineWarning(); got != 2*time.Hour {
		t.Errorf("Monitor.DeadlineWarning() = %v, want 2h", got)
	}

	if got := cfg.Distributor.DeadlineOffset(); got != 24*time.Hour {
		t.Errorf("Distributor.DeadlineOffset() = %v, want 24h", got)
	}
	if cfg.Mailbox.Backend != MailboxFile {
		t.Errorf("Mailbox.Backend = %q, want %q", cfg.Mailbox.Backend, MailboxFile)
	}
	if cfg.History.Backend != "jsonl" {
		t.Errorf("History.Backend = %q, want jsonl", cfg.History.Backend)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false by default")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("Default() should be valid, got %v", ValidationErrors(errs))
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := ConfigDir(); got != "/custom/config/foreman" {
		t.Errorf("ConfigDir() = %q, want %q", got, "/custom/config/foreman")
	}
	if got := ConfigFile(); got != "/custom/config/foreman/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestPathsConfig_ResolveStateDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		name     string
		stateDir string
		check    func(string) bool
	}{
		{"default is relative to cwd", "", func(p string) bool {
			return filepath.IsAbs(p) && filepath.Base(p) == DefaultStateDir
		}},
		{"absolute kept", "/var/lib/foreman", func(p string) bool { return p == "/var/lib/foreman" }},
		{"home expanded", "~/foreman", func(p string) bool { return p == filepath.Join(home, "foreman") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PathsConfig{StateDir: tt.stateDir}
			if got := p.ResolveStateDir(); !tt.check(got) {
				t.Errorf("ResolveStateDir() = %q", got)
			}
		})
	}
}

func TestMailboxConfig_ResolveDir(t *testing.T) {
	m := MailboxConfig{}
	if got := m.ResolveDir("/state"); got != "/state/mailbox" {
		t.Errorf("ResolveDir() = %q, want /state/mailbox", got)
	}
	m.Dir = "/shared/mail"
	if got := m.ResolveDir("/state"); got != "/shared/mail" {
		t.Errorf("ResolveDir() = %q, want /shared/mail", got)
	}
}

func newViper(t *testing.T, yaml string) (*viper.Viper, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	return v, path
}

func TestLoadFrom(t *testing.T) {
	v, _ := newViper(t, `
coordinator:
  strategy: least_loaded
  interval_seconds: 15
monitor:
  capacity_hours: 6
`)

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Coordinator.Strategy != "least_loaded" {
		t.Errorf("Strategy = %q", cfg.Coordinator.Strategy)
	}
	if cfg.Coordinator.Interval() != 15*time.Second {
		t.Errorf("Interval() = %v", cfg.Coordinator.Interval())
	}
	if cfg.Monitor.Capacity() != 6*time.Hour {
		t.Errorf("Capacity() = %v", cfg.Monitor.Capacity())
	}
	// Untouched keys keep their defaults
	if cfg.Monitor.OverloadThreshold != 0.8 {
		t.Errorf("OverloadThreshold = %v, want default", cfg.Monitor.OverloadThreshold)
	}
}

func TestLoadFrom_EnvOverride(t *testing.T) {
	v, _ := newViper(t, "logging:\n  level: info\n")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	t.Setenv("FOREMAN_LOGGING_LEVEL", "debug")

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	v, _ := newViper(t, `
coordinator:
  strategy: fastest
monitor:
  overload_threshold: 1.5
`)

	_, err := LoadFrom(v)
	if err == nil {
		t.Fatal("LoadFrom() should fail")
	}
	var verrs ValidationErrors
	if !asValidationErrors(err, &verrs) {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(verrs), verrs)
	}
}

func asValidationErrors(err error, out *ValidationErrors) bool {
	v, ok := err.(ValidationErrors)
	if ok {
		*out = v
	}
	return ok
}

func TestWriteFileAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Coordinator.Strategy = "skill_based"
	cfg.Mailbox.Backend = MailboxRedis

	if err := cfg.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := cfg.WriteFile(path); err == nil {
		t.Error("WriteFile() should refuse to overwrite")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# foreman configuration") {
		t.Error("written file should start with the header comment")
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got.Coordinator.Strategy != "skill_based" || got.Mailbox.Backend != MailboxRedis {
		t.Errorf("ReadFile() = %+v", got)
	}
	if diff := Diff(cfg, got); len(diff) != 0 {
		t.Errorf("round trip changed keys %v", diff)
	}
}

func TestDiff(t *testing.T) {
	a := Default()
	b := Default()
	if keys := Diff(a, b); len(keys) != 0 {
		t.Errorf("Diff(identical) = %v", keys)
	}

	b.Logging.Level = "debug"
	b.Monitor.CapacityHours = 10
	keys := Diff(a, b)
	want := []string{"logging.level", "monitor.capacity_hours"}
	if len(keys) != len(want) {
		t.Fatalf("Diff() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Diff()[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	change := Change{Old: a, New: b, Keys: keys}
	if !change.Has("logging.level") {
		t.Error("Has(logging.level) = false")
	}
	restart := change.RestartRequired()
	if len(restart) != 1 || restart[0] != "monitor.capacity_hours" {
		t.Errorf("RestartRequired() = %v", restart)
	}
}

func TestWatcher_Handle(t *testing.T) {
	v, path := newViper(t, "logging:\n  level: info\n")
	var changes []Change
	w := &Watcher{
		v:        v,
		logger:   logging.NopLogger(),
		onChange: func(c Change) { changes = append(changes, c) },
		current:  Default(),
	}
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := v.ReadInConfig(); err != nil {
			t.Fatal(err)
		}
		w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write})
	}

	write("logging:\n  level: debug\ncoordinator:\n  strategy: least_loaded\n")
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	if !changes[0].Has("logging.level") || !changes[0].Has("coordinator.strategy") {
		t.Errorf("Keys = %v", changes[0].Keys)
	}
	if w.Current().Logging.Level != "debug" {
		t.Errorf("Current().Logging.Level = %q", w.Current().Logging.Level)
	}

	// Invalid updates are ignored and the last good config is kept
	write("coordinator:\n  strategy: nope\n")
	if len(changes) != 1 {
		t.Errorf("invalid update should not fire the callback")
	}
	if w.Current().Coordinator.Strategy != "least_loaded" {
		t.Errorf("Current().Coordinator.Strategy = %q", w.Current().Coordinator.Strategy)
	}

	// Rewriting identical content is not a change
	write("logging:\n  level: debug\ncoordinator:\n  strategy: least_loaded\n")
	if len(changes) != 1 {
		t.Errorf("unchanged content fired the callback")
	}

	// Remove events are ignored
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Remove})
	if len(changes) != 1 {
		t.Errorf("remove event fired the callback")
	}
}
