package watcher

import (
	"context"
	"time"
)

// StartPolling reloads whenever the file's modification time or size changes.
func (w *Watcher) StartPolling(ctx context.Context) {
	w.log.Info("watching config file", "path", w.path, "method", "poll", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.changed() {
				w.reload()
			}
		}
	}
}

func (w *Watcher) changed() bool {
	info, ok := w.stat()
	if !ok {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return !info.ModTime().Equal(w.lastMod) || info.Size() != w.lastSize
}
