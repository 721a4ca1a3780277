package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/share-archiver/internal/config"
	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
)

type runs struct {
	mu    sync.Mutex
	names []string
	gate  chan struct{}
}

func (r *runs) run(ctx context.Context, job config.JobConfig) error {
	r.mu.Lock()
	r.names = append(r.names, job.Name)
	gate := r.gate
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if job.Mode == "fail" {
		return errors.New("job failed")
	}
	return nil
}

func (r *runs) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.names {
		if got == name {
			n++
		}
	}
	return n
}

func job(name string) config.JobConfig {
	return config.JobConfig{Name: name, Cron: "0 3 * * *", Mode: config.ModeSnapshot}
}

func newStarted(t *testing.T, r *runs, jobs ...config.JobConfig) *Scheduler {
	t.Helper()
	s := New(r.run, logging.ForTest(t))
	require.NoError(t, s.Start(context.Background(), jobs))
	t.Cleanup(s.Stop)
	return s
}

func TestTrigger_RunsJob(t *testing.T) {
	var r runs
	s := newStarted(t, &r, job("nightly"))

	assert.True(t, s.Trigger("nightly"))
	assert.False(t, s.Trigger("unknown"))

	require.Eventually(t, func() bool { return r.count("nightly") == 1 }, time.Second, time.Millisecond)
}

func TestTrigger_CoalescesWhileRunning(t *testing.T) {
	r := runs{gate: make(chan struct{})}
	s := newStarted(t, &r, job("nightly"))

	require.True(t, s.Trigger("nightly"))
	require.Eventually(t, func() bool { return r.count("nightly") == 1 }, time.Second, time.Millisecond)

	for range 5 {
		require.True(t, s.Trigger("nightly"))
	}
	r.gate <- struct{}{}
	require.Eventually(t, func() bool { return r.count("nightly") == 2 }, time.Second, time.Millisecond)
	r.gate <- struct{}{}

	assert.Never(t, func() bool { return r.count("nightly") > 2 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestTrigger_FailureKeepsWorkerAlive(t *testing.T) {
	var r runs
	failing := job("flaky")
	failing.Mode = "fail"
	s := newStarted(t, &r, failing)

	s.Trigger("flaky")
	require.Eventually(t, func() bool { return r.count("flaky") == 1 }, time.Second, time.Millisecond)
	s.Trigger("flaky")
	require.Eventually(t, func() bool { return r.count("flaky") == 2 }, time.Second, time.Millisecond)
}

func TestReload(t *testing.T) {
	var r runs
	s := newStarted(t, &r, job("a"), job("b"))
	assert.ElementsMatch(t, []string{"a", "b"}, s.Jobs())

	require.NoError(t, s.Reload([]config.JobConfig{job("b"), job("c")}))
	assert.ElementsMatch(t, []string{"b", "c"}, s.Jobs())
	assert.False(t, s.Trigger("a"))
	assert.True(t, s.Trigger("c"))
	require.Eventually(t, func() bool { return r.count("c") == 1 }, time.Second, time.Millisecond)

	bad := job("d")
	bad.Cron = "not a cron"
	err := s.Reload([]config.JobConfig{bad})
	assert.True(t, errors.Is(err, archerrors.ErrValidation))
	assert.ElementsMatch(t, []string{"b", "c"}, s.Jobs(), "failed reload keeps the old schedule")

	err = s.Reload([]config.JobConfig{job("x"), job("x")})
	assert.True(t, errors.Is(err, archerrors.ErrValidation))
}

func TestStart_Twice(t *testing.T) {
	var r runs
	s := newStarted(t, &r)
	assert.Error(t, s.Start(context.Background(), nil))
}

func TestReload_BeforeStart(t *testing.T) {
	s := New(func(context.Context, config.JobConfig) error { return nil }, nil)
	assert.Error(t, s.Reload(nil))
}

func TestStop_WaitsForRunningJob(t *testing.T) {
	r := runs{gate: make(chan struct{})}
	s := New(r.run, logging.ForTest(t))
	require.NoError(t, s.Start(context.Background(), []config.JobConfig{job("slow")}))

	s.Trigger("slow")
	require.Eventually(t, func() bool { return r.count("slow") == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the job was running")
	case <-time.After(30 * time.Millisecond):
	}

	r.gate <- struct{}{}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.False(t, s.Trigger("slow"))
}

func TestCron_Fires(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a cron tick")
	}
	var r runs
	j := job("tick")
	j.Cron = "@every 1s"
	newStarted(t, &r, j)

	require.Eventually(t, func() bool { return r.count("tick") >= 1 }, 3*time.Second, 10*time.Millisecond)
}
