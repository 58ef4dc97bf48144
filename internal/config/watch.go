package config

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/foreman/internal/logging"
)

// Change describes a configuration update picked up from disk.
type Change struct {
	Old *Config
	New *Config

	// Keys lists the dotted keys whose values differ.
	Keys []string
}

// Has reports whether key changed.
func (c Change) Has(key string) bool {
	return slices.Contains(c.Keys, key)
}

// Reloadable keys are applied by a running coordinator. Everything else
// needs a restart.
var reloadable = map[string]bool{
	"logging.level":        true,
	"coordinator.strategy": true,
}

// RestartRequired returns the changed keys a running process cannot apply.
func (c Change) RestartRequired() []string {
	var keys []string
	for _, k := range c.Keys {
		if !reloadable[k] {
			keys = append(keys, k)
		}
	}
	return keys
}

// Diff returns the dotted keys whose values differ between a and b.
func Diff(a, b *Config) []string {
	left, right := flatten(a), flatten(b)
	var keys []string
	for _, k := range orderedKeys(left) {
		if left[k] != right[k] {
			keys = append(keys, k)
		}
	}
	return keys
}

// flatten renders the config through viper's key space so key names match
// the file and environment variables.
func flatten(c *Config) map[string]string {
	v := viper.New()
	data, err := c.Marshal()
	if err != nil {
		return nil
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
		return nil
	}
	out := make(map[string]string)
	for _, k := range v.AllKeys() {
		out[k] = v.GetString(k)
	}
	return out
}

func orderedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}

// Watcher re-reads the config file whenever fsnotify reports a change and
// hands valid updates to a callback. Invalid files are logged and ignored so
// a typo never takes down a running coordinator.
type Watcher struct {
	v        *viper.Viper
	logger   *logging.Logger
	onChange func(Change)

	mu      sync.Mutex
	current *Config
}

// Watch starts watching the config file behind v. current is the config the
// process is running with.
func Watch(v *viper.Viper, current *Config, logger *logging.Logger, onChange func(Change)) *Watcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if current == nil {
		current = Default()
	}
	w := &Watcher{
		v:        v,
		logger:   logger.WithComponent("config"),
		onChange: onChange,
		current:  current,
	}
	v.OnConfigChange(w.handle)
	v.WatchConfig()
	return w
}

// Current returns the most recently applied config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Watcher) handle(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	next, err := LoadFrom(w.v)
	if err != nil {
		w.logger.Warn("ignoring invalid config update", "file", e.Name, "error", err.Error())
		return
	}

	w.mu.Lock()
	prev := w.current
	keys := Diff(prev, next)
	if len(keys) == 0 {
		w.mu.Unlock()
		return
	}
	w.current = next
	w.mu.Unlock()

	change := Change{Old: prev, New: next, Keys: keys}
	if restart := change.RestartRequired(); len(restart) > 0 {
		w.logger.Warn("config changes need a restart to take effect", "keys", strings.Join(restart, ","))
	}
	w.logger.Info("config reloaded", "file", e.Name, "changed", strings.Join(keys, ","))
	if w.onChange != nil {
		w.onChange(change)
	}
}
