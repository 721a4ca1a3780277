package watcher

import (
	"os"

	"github.com/raoulx24/share-archiver/internal/config"
)

func (w *Watcher) stat() (os.FileInfo, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Debug("config file not readable", "path", w.path, "error", err)
		return nil, false
	}
	return info, true
}

// isStable reports whether the file size and mtime hold still over the
// stability window, so a file still being written is not parsed half way.
func (w *Watcher) isStable() (os.FileInfo, bool) {
	before, ok := w.stat()
	if !ok {
		return nil, false
	}
	w.sleep(w.stability)
	after, ok := w.stat()
	if !ok || after.Size() != before.Size() || !after.ModTime().Equal(before.ModTime()) {
		return nil, false
	}
	return after, true
}

// reload parses the file and hands the result to the callback. An invalid file
// is logged and ignored; the previous configuration stays in effect.
func (w *Watcher) reload() {
	info, ok := w.isStable()
	if !ok {
		w.log.Debug("config file not stable yet", "path", w.path)
		return
	}

	w.mu.Lock()
	w.lastMod, w.lastSize = info.ModTime(), info.Size()
	w.mu.Unlock()

	cfg, err := config.Load(w.path)
	if err != nil {
		w.log.Error("ignoring invalid config file", "path", w.path, "error", err)
		return
	}
	w.log.Info("config file reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
