// Package cli holds the process bootstrap shared by every pipeline binary:
// config loading, logger construction, queue access, and the single-instance
// lock.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"

	"kotoba/internal/config"
	"kotoba/internal/logging"
	"kotoba/internal/paths"
	"kotoba/internal/queue"
)

// Options control runtime construction.
type Options struct {
	// Component names the binary for logs and the lock file.
	Component string
	// ConfigPath is the --config flag value; empty loads defaults.
	ConfigPath string
	// Verbose forces debug-level logging.
	Verbose bool
}

// Runtime bundles the state every binary needs. Callers must Close it.
type Runtime struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *queue.Store
	Data   paths.Data

	lock *flock.Flock
}

// NewRuntime loads and validates configuration, prepares the data tree,
// acquires the component's instance lock, and opens the queue.
func NewRuntime(opts Options) (*Runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	data := paths.NewData(cfg.DataDir())
	if err := data.CreateDirs(); err != nil {
		return nil, err
	}

	level := cfg.Logging.DefaultLevel
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{
		Level:      level,
		Component:  opts.Component,
		LogDir:     cfg.LogDir(),
		Console:    cfg.Logging.Console,
		File:       cfg.Logging.File,
		JSONFormat: cfg.Logging.JSONFormat,
	})
	if err != nil {
		return nil, err
	}

	lock := flock.New(data.LockFile(opts.Component))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another %s instance is already running", opts.Component)
	}

	store, err := queue.Open(cfg.DatabasePath())
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	return &Runtime{
		Config: cfg,
		Logger: logger,
		Store:  store,
		Data:   data,
		lock:   lock,
	}, nil
}

// Close releases the queue and the instance lock.
func (r *Runtime) Close() error {
	var errs []error
	if r.Store != nil {
		errs = append(errs, r.Store.Close())
	}
	if r.lock != nil {
		errs = append(errs, r.lock.Unlock())
	}
	return errors.Join(errs...)
}

// SignalContext returns a context canceled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
