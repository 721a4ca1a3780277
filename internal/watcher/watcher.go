// Package watcher reloads the configuration file when it changes on disk.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/raoulx24/share-archiver/internal/config"
	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/fsprobe"
	"github.com/raoulx24/share-archiver/internal/logging"
)

const (
	DefaultPollInterval   = 10 * time.Second
	DefaultDebounceWindow = 500 * time.Millisecond
	defaultStability      = 50 * time.Millisecond
)

// ReloadFunc receives every successfully parsed new configuration.
type ReloadFunc func(cfg *config.Config)

// Watcher observes one configuration file.
type Watcher struct {
	mu sync.Mutex

	path      string
	method    string
	interval  time.Duration
	debounce  time.Duration
	stability time.Duration
	sleep     func(time.Duration)

	log      logging.Logger
	onReload ReloadFunc

	lastMod  time.Time
	lastSize int64
}

// New creates a watcher for the file at path using the reload settings of cfg.
func New(path string, cfg config.ReloadConfig, log logging.Logger, onReload ReloadFunc) *Watcher {
	if log == nil {
		log = logging.Discard()
	}
	w := &Watcher{
		path:      path,
		method:    cfg.Method,
		interval:  cfg.PollInterval,
		debounce:  cfg.DebounceWindow,
		stability: defaultStability,
		sleep:     time.Sleep,
		log:       log,
		onReload:  onReload,
	}
	if w.interval <= 0 {
		w.interval = DefaultPollInterval
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounceWindow
	}
	if info, ok := w.stat(); ok {
		w.lastMod, w.lastSize = info.ModTime(), info.Size()
	}
	return w
}

// Start blocks until ctx is done, choosing the strategy from the configured method.
func (w *Watcher) Start(ctx context.Context) error {
	switch w.method {
	case "fsnotify":
		return w.StartFsNotify(ctx)

	case "poll":
		w.StartPolling(ctx)
		return nil

	case "auto", "":
		res := fsprobe.Probe(filepath.Dir(w.path), 0)
		if res.FsnotifySupported {
			return w.StartFsNotify(ctx)
		}
		w.log.Warn("fsnotify disabled, polling config file", "reason", res.Reason, "interval", w.interval)
		w.StartPolling(ctx)
		return nil

	default:
		return archerrors.Validationf("unknown config reload method %q", w.method)
	}
}
