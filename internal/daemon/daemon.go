// Package daemon re-runs the sync batch on an interval and reloads the
// configuration when its file changes.
//
// The daemon:
// 1. Runs the batch immediately on start
// 2. Re-runs it every Interval
// 3. Watches the config file and re-runs on change (debounced)
// 4. Handles graceful shutdown via context cancellation
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// RunFunc executes one batch pass. It re-reads the config file itself,
// so an edited config takes effect on the next pass.
type RunFunc func(ctx context.Context, configPath string) error

// Config holds configuration for the daemon.
type Config struct {
	// Interval is how often to re-run the batch.
	Interval time.Duration

	// DebounceInterval is how long to wait after a config-file event
	// before re-running. Editors fire several events per save.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         30 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates interval re-runs and config watching.
type Daemon struct {
	configPath string
	run        RunFunc
	config     *Config

	watcher *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	trigger chan struct{}
}

// New creates a Daemon with default configuration.
func New(configPath string, run RunFunc) (*Daemon, error) {
	return NewWithConfig(configPath, run, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(configPath string, run RunFunc, config *Config) (*Daemon, error) {
	if configPath == "" {
		return nil, fmt.Errorf("configPath cannot be empty")
	}
	if run == nil {
		return nil, fmt.Errorf("run cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		configPath: configPath,
		run:        run,
		config:     config,
		watcher:    watcher,
		ctx:        ctx,
		cancel:     cancel,
		trigger:    make(chan struct{}, 1),
	}, nil
}

// Start begins the run loop and the config watcher. It returns
// immediately; use Wait or Stop to manage the daemon's lifetime.
func (d *Daemon) Start() error {
	// Watch the directory, not the file: editors replace files on save
	// and a watch on the old inode would go stale.
	dir := filepath.Dir(d.configPath)
	if err := d.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	d.wg.Add(2)
	go d.watchLoop()
	go d.runLoop()
	return nil
}

// Stop shuts the daemon down and waits for in-flight work to finish.
func (d *Daemon) Stop() error {
	d.cancel()
	err := d.watcher.Close()
	d.wg.Wait()
	return err
}

// Wait blocks until the daemon's context is cancelled.
func (d *Daemon) Wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-d.ctx.Done():
	}
}

// runLoop runs the batch immediately, then on every tick or trigger.
func (d *Daemon) runLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	d.runOnce()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runOnce()
		case <-d.trigger:
			d.config.Logger.Printf("config changed, re-running")
			d.runOnce()
			ticker.Reset(d.config.Interval)
		}
	}
}

func (d *Daemon) runOnce() {
	runID := uuid.NewString()[:8]
	d.config.Logger.Printf("pass %s starting", runID)
	start := time.Now()

	if err := d.run(d.ctx, d.configPath); err != nil {
		d.config.Logger.Printf("pass %s failed: %v", runID, err)
		return
	}
	d.config.Logger.Printf("pass %s complete in %v", runID, time.Since(start).Round(time.Millisecond))
}

// watchLoop debounces config-file events into run triggers.
func (d *Daemon) watchLoop() {
	defer d.wg.Done()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-d.ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(d.configPath) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(d.config.DebounceInterval, func() {
				select {
				case d.trigger <- struct{}{}:
				default:
				}
			})
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("watcher error: %v", err)
		}
	}
}
