package credential

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TokenSource reads the current credential.
type TokenSource interface {
	Token(ctx context.Context, name string) (string, error)
}

// WatcherOptions configure a Watcher.
type WatcherOptions struct {
	Profile string
	// Path is the storage file to watch for writes from other processes.
	// Empty disables the file watch; polling still runs.
	Path         string
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Watcher calls onChange whenever the stored credential differs from the
// last one it saw. An empty token means the credential was removed.
type Watcher struct {
	source   TokenSource
	opts     WatcherOptions
	onChange func(token string)
	logger   *zap.Logger

	mu      sync.Mutex
	last    string
	started bool

	cron    *cron.Cron
	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	checkMu sync.Mutex
}

// NewWatcher creates a watcher. initial is the token already in use, so a
// first check that finds the same token does not fire onChange.
func NewWatcher(source TokenSource, opts WatcherOptions, initial string, onChange func(token string)) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		source:   source,
		opts:     opts,
		onChange: onChange,
		logger:   logger,
		last:     initial,
	}
}

// Start begins polling and, when a path is configured, watching the file.
// A file watch that cannot be set up is logged and polling carries on alone.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	w.cron = cron.New()
	schedule := fmt.Sprintf("@every %s", w.opts.PollInterval)
	if _, err := w.cron.AddFunc(schedule, w.Check); err != nil {
		return fmt.Errorf("failed to schedule credential poll: %w", err)
	}

	if w.opts.Path != "" {
		if err := w.watchFile(); err != nil {
			w.logger.Warn("credential file watch unavailable, polling only", zap.Error(err))
		}
	}

	w.cron.Start()
	w.started = true
	w.logger.Info("credential watcher started",
		zap.String("profile", w.opts.Profile),
		zap.String("path", w.opts.Path),
		zap.Duration("poll_interval", w.opts.PollInterval))
	return nil
}

// watchFile starts the fsnotify loop on the directory holding Path.
func (w *Watcher) watchFile() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory: sqlite rewrites the file and its -wal/-journal siblings.
	if err := fsw.Add(filepath.Dir(w.opts.Path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.opts.Path, err)
	}
	w.fsw = fsw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.watchLoop(fsw, w.stopCh, w.doneCh)
	return nil
}

// Stop halts polling and the file watch. It waits for a running check.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	c, fsw, stopCh, doneCh := w.cron, w.fsw, w.stopCh, w.doneCh
	w.fsw = nil
	w.mu.Unlock()

	<-c.Stop().Done()
	if fsw != nil {
		close(stopCh)
		<-doneCh
		_ = fsw.Close()
	}
	w.logger.Info("credential watcher stopped")
}

// Check reads the stored credential and fires onChange if it differs.
func (w *Watcher) Check() {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := w.source.Token(ctx, w.opts.Profile)
	if errors.Is(err, ErrNotFound) {
		token, err = "", nil
	}
	if err != nil {
		w.logger.Warn("credential check failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	changed := token != w.last
	w.last = token
	w.mu.Unlock()

	if changed {
		w.logger.Info("stored credential changed",
			zap.String("profile", w.opts.Profile),
			zap.Bool("present", token != ""))
		w.onChange(token)
	}
}

func (w *Watcher) watchLoop(fsw *fsnotify.Watcher, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	base := filepath.Base(w.opts.Path)

	for {
		select {
		case <-stopCh:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.Check()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("credential file watch error", zap.Error(err))
		}
	}
}
