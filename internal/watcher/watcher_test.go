package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/share-archiver/internal/config"
	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/fsprobe"
	"github.com/raoulx24/share-archiver/internal/logging"
)

type reloads struct {
	mu   sync.Mutex
	cfgs []*config.Config
}

func (r *reloads) add(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfgs = append(r.cfgs, cfg)
}

func (r *reloads) last() *config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cfgs) == 0 {
		return nil
	}
	return r.cfgs[len(r.cfgs)-1]
}

func (r *reloads) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cfgs)
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func start(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
}

func TestWatcher_PollReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "source:\n  shareName: one\n")

	var got reloads
	w := New(path, config.ReloadConfig{Method: "poll", PollInterval: 10 * time.Millisecond}, logging.ForTest(t), got.add)
	w.stability = time.Millisecond
	start(t, w)

	assert.Never(t, func() bool { return got.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	writeConfig(t, path, "source:\n  shareName: second\n")
	require.Eventually(t, func() bool { return got.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "second", got.last().Source.ShareName)
	assert.Equal(t, config.DefaultArchiveType, got.last().Backup.ArchiveType)
}

func TestWatcher_InvalidFileIsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "source:\n  shareName: one\n")

	var got reloads
	w := New(path, config.ReloadConfig{Method: "poll", PollInterval: 10 * time.Millisecond}, logging.ForTest(t), got.add)
	w.stability = time.Millisecond
	start(t, w)

	writeConfig(t, path, "source: [unterminated\n")
	assert.Never(t, func() bool { return got.count() > 0 }, 100*time.Millisecond, 5*time.Millisecond)

	writeConfig(t, path, "source:\n  shareName: fixed-again\n")
	require.Eventually(t, func() bool { return got.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "fixed-again", got.last().Source.ShareName)
}

func TestWatcher_SkipsFileTouchedDuringWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "source:\n  shareName: one\n")

	var got reloads
	w := New(path, config.ReloadConfig{Method: "poll"}, logging.ForTest(t), got.add)
	w.sleep = func(time.Duration) {
		writeConfig(t, path, "source:\n  shareName: two\n")
		later := time.Now().Add(time.Minute)
		require.NoError(t, os.Chtimes(path, later, later))
	}
	w.reload()
	assert.Zero(t, got.count())

	w.sleep = func(time.Duration) {}
	w.reload()
	require.Equal(t, 1, got.count())
	assert.Equal(t, "two", got.last().Source.ShareName)
}

func TestWatcher_FsNotify(t *testing.T) {
	dir := t.TempDir()
	if res := fsprobe.Probe(dir, time.Second); !res.FsnotifySupported {
		t.Skipf("fsnotify not usable here: %s", res.Reason)
	}
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "source:\n  shareName: one\n")

	var got reloads
	w := New(path, config.ReloadConfig{Method: "fsnotify", DebounceWindow: 20 * time.Millisecond}, logging.ForTest(t), got.add)
	w.stability = time.Millisecond
	start(t, w)
	time.Sleep(50 * time.Millisecond)

	writeConfig(t, filepath.Join(dir, "other.yaml"), "ignored: true\n")
	writeConfig(t, path, "source:\n  shareName: two\n")

	require.Eventually(t, func() bool { return got.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "two", got.last().Source.ShareName)
}

func TestWatcher_UnknownMethod(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "c.yaml"), config.ReloadConfig{Method: "inotify"}, nil, nil)
	err := w.Start(context.Background())
	assert.True(t, errors.Is(err, archerrors.ErrValidation))
}

func TestNew_Defaults(t *testing.T) {
	w := New("missing.yaml", config.ReloadConfig{}, nil, nil)
	assert.Equal(t, DefaultPollInterval, w.interval)
	assert.Equal(t, DefaultDebounceWindow, w.debounce)
	assert.True(t, w.lastMod.IsZero())
}
