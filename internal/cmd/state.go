package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/Iron-Ham/foreman/internal/balance"
	"github.com/Iron-Ham/foreman/internal/config"
	"github.com/Iron-Ham/foreman/internal/distributor"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/history"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/mailbox"
	"github.com/Iron-Ham/foreman/internal/mailbox/redisbox"
	"github.com/Iron-Ham/foreman/internal/monitor"
	"github.com/Iron-Ham/foreman/internal/statefile"
	"github.com/Iron-Ham/foreman/internal/task"
)

// runLockDir holds the lock a running coordinator keeps for its lifetime.
// It is separate from the state file lock, which is only held while a file
// is being read or written.
const runLockDir = "run"

// env is everything a command needs from the state directory.
type env struct {
	cfg      *config.Config
	stateDir string
	logger   *logging.Logger
	bus      *event.Bus

	box     *mailbox.Mailbox
	closers []io.Closer
}

// loadConfig reads the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newEnv loads config, opens the logger, and connects the mailbox.
// Short-lived commands log to the state directory so stdout stays clean.
func newEnv(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	e := &env{
		cfg:      cfg,
		stateDir: cfg.Paths.ResolveStateDir(),
		bus:      event.NewBus(),
	}

	logDir := e.stateDir
	if cfg.Logging.Stderr {
		logDir = ""
	}
	e.logger, err = logging.NewLogger(logDir, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, e.logger)

	if err := e.openMailbox(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *env) openMailbox(ctx context.Context) error {
	opts := []mailbox.Option{
		mailbox.WithBus(e.bus),
		mailbox.WithLogger(e.logger),
		mailbox.WithTTL(e.cfg.Mailbox.MessageTTL()),
	}
	switch e.cfg.Mailbox.Backend {
	case config.MailboxRedis:
		backend, err := redisbox.Dial(ctx, e.cfg.Mailbox.RedisAddr, e.cfg.Mailbox.RedisPassword,
			redisbox.WithPrefix(e.cfg.Mailbox.RedisPrefix))
		if err != nil {
			return err
		}
		e.closers = append(e.closers, backend)
		e.box = mailbox.New(backend, opts...)
	default:
		e.box = mailbox.NewFileMailbox(e.cfg.Mailbox.ResolveDir(e.stateDir), opts...)
	}
	return nil
}

// Close releases the mailbox connection and the log file.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}

func (e *env) distributorOptions() []distributor.Option {
	prio, _ := task.ParsePriority(e.cfg.Distributor.DefaultPriority)
	return []distributor.Option{
		distributor.WithSender(e.box),
		distributor.WithBus(e.bus),
		distributor.WithLogger(e.logger),
		distributor.WithDefaults(distributor.Defaults{
			Priority:       prio,
			EstimatedHours: e.cfg.Distributor.DefaultEstimatedHours,
			DeadlineOffset: e.cfg.Distributor.DeadlineOffset(),
		}),
	}
}

func (e *env) openDistributor() (*distributor.Distributor, error) {
	return distributor.Open(e.stateDir, e.distributorOptions()...)
}

func (e *env) newMonitor(source monitor.TaskSource) *monitor.Monitor {
	mc := e.cfg.Monitor
	return monitor.New(source, e.box,
		monitor.WithCapacity(mc.CapacityHours),
		monitor.WithOverloadThreshold(mc.OverloadThreshold),
		monitor.WithUnavailableTimeout(mc.UnavailableTimeout()),
		monitor.WithDeadlineWarning(mc.DeadlineWarning()),
		monitor.WithStuckFactor(mc.StuckFactor),
		monitor.WithPollConcurrency(mc.PollConcurrency),
		monitor.WithProbeTimeout(mc.ProbeTimeout()),
		monitor.WithSender(e.box),
		monitor.WithBus(e.bus),
		monitor.WithLogger(e.logger),
	)
}

func (e *env) openRegistry() (*balance.Registry, error) {
	return balance.LoadRegistry(e.stateDir)
}

func (e *env) openHistory() (history.Store, error) {
	return history.Open(e.cfg.History.Backend, e.cfg.History.Path, e.stateDir)
}

// acquireRunLock takes the coordinator lock without waiting. It fails with
// ErrStateLocked while another coordinator is running.
func acquireRunLock(stateDir string) (*statefile.FileLock, error) {
	lock := statefile.NewFileLock(filepath.Join(stateDir, runLockDir))
	if err := lock.TryLock(); err != nil {
		return nil, err
	}
	return lock, nil
}

// offline runs fn while holding the coordinator lock. State edits are
// refused while a coordinator is running, because its next checkpoint
// would overwrite them.
func (e *env) offline(fn func() error) error {
	lock, err := acquireRunLock(e.stateDir)
	if err != nil {
		if errors.Is(err, errors.ErrStateLocked) {
			return fmt.Errorf("a coordinator is running on %s; stop it before editing state (workers report outcomes with 'foreman task report')", e.stateDir)
		}
		return err
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

// editTasks runs fn against the saved task state and writes it back.
func (e *env) editTasks(fn func(d *distributor.Distributor) error) error {
	return e.offline(func() error {
		d, err := e.openDistributor()
		if err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
		return d.SaveState(e.stateDir)
	})
}
