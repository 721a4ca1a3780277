// Package scheduler fires configured jobs on their cron schedules.
//
// Every job owns a mailbox and a goroutine. A trigger arriving while the job
// is still running replaces any trigger already waiting, so runs of one job
// never overlap and never pile up.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/raoulx24/share-archiver/internal/config"
	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/mailbox"
)

// RunFunc executes one job run.
type RunFunc func(ctx context.Context, job config.JobConfig) error

// Trigger is one request to run a job.
type Trigger struct {
	Job config.JobConfig
	At  time.Time
}

type worker struct {
	mb   *mailbox.Mailbox[Trigger]
	done chan struct{}
}

// Scheduler owns the cron and the per-job workers.
type Scheduler struct {
	// reload serializes Reload and Stop.
	reload sync.Mutex

	mu      sync.Mutex
	ctx     context.Context
	run     RunFunc
	log     logging.Logger
	cron    *cron.Cron
	jobs    map[string]config.JobConfig
	workers map[string]*worker
	started bool
}

func New(run RunFunc, log logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Discard()
	}
	return &Scheduler{
		run:     run,
		log:     log,
		jobs:    make(map[string]config.JobConfig),
		workers: make(map[string]*worker),
	}
}

// Start schedules jobs. Runs receive ctx; canceling it aborts running jobs,
// Stop is still needed to release the workers.
func (s *Scheduler) Start(ctx context.Context, jobs []config.JobConfig) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.ctx = ctx
	s.started = true
	s.mu.Unlock()

	return s.Reload(jobs)
}

// Reload replaces the schedule. Jobs that disappeared are stopped once their
// current run finishes; jobs that stay keep their worker and pending trigger.
// On error the previous schedule stays in effect.
func (s *Scheduler) Reload(jobs []config.JobConfig) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithParser(config.CronParser),
		cron.WithLogger(cronLogger{s.log}),
	)
	next := make(map[string]config.JobConfig, len(jobs))
	for _, j := range jobs {
		if _, dup := next[j.Name]; dup {
			return archerrors.Validationf("duplicate job name %q", j.Name)
		}
		sched, err := config.CronParser.Parse(j.Cron)
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "job %q: cron %q", j.Name, j.Cron), archerrors.ErrValidation)
		}
		name := j.Name
		c.Schedule(sched, cron.FuncJob(func() { s.Trigger(name) }))
		next[j.Name] = j
	}

	s.reload.Lock()
	defer s.reload.Unlock()

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.New("scheduler not started")
	}
	old := s.cron
	s.cron = nil
	s.mu.Unlock()

	// Cron jobs call Trigger, which takes s.mu.
	if old != nil {
		<-old.Stop().Done()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, w := range s.workers {
		if _, keep := next[name]; !keep {
			w.mb.Close()
			delete(s.workers, name)
			s.log.Info("job removed", "job", name)
		}
	}
	for name, j := range next {
		if _, ok := s.workers[name]; !ok {
			s.workers[name] = s.startWorker(name)
			s.log.Info("job scheduled", "job", name, "cron", j.Cron, "mode", j.Mode)
		}
	}
	s.jobs = next
	s.cron = c
	c.Start()
	return nil
}

// Trigger requests a run of the named job now. It reports false for unknown jobs.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	w := s.workers[name]
	s.mu.Unlock()
	if !ok || w == nil {
		return false
	}

	if w.mb.HasItem() {
		s.log.Warn("job still pending, coalescing trigger", "job", name)
	}
	return w.mb.Put(Trigger{Job: j, At: time.Now().UTC()})
}

// Jobs returns the names of the scheduled jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	return names
}

// Stop halts the cron, closes every mailbox and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.reload.Lock()
	defer s.reload.Unlock()

	s.mu.Lock()
	old := s.cron
	s.cron = nil
	s.mu.Unlock()
	if old != nil {
		<-old.Stop().Done()
	}

	s.mu.Lock()
	workers := s.workers
	s.workers = make(map[string]*worker)
	s.jobs = make(map[string]config.JobConfig)
	s.mu.Unlock()

	for _, w := range workers {
		w.mb.Close()
	}
	for _, w := range workers {
		<-w.done
	}
}

// startWorker must be called with s.mu held.
func (s *Scheduler) startWorker(name string) *worker {
	w := &worker{mb: mailbox.New[Trigger](), done: make(chan struct{})}
	ctx := s.ctx
	go func() {
		defer close(w.done)
		for {
			t, ok := w.mb.Take()
			if !ok {
				return
			}
			s.execute(ctx, name, t)
		}
	}()
	return w
}

func (s *Scheduler) execute(ctx context.Context, name string, t Trigger) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", "job", name, "panic", r)
		}
	}()

	s.log.Info("job started", "job", name, "mode", t.Job.Mode, "triggered", t.At)
	err := s.run(ctx, t.Job)
	switch {
	case err == nil:
		s.log.Info("job finished", "job", name)
	case archerrors.IsCanceled(err):
		s.log.Info("job canceled", "job", name)
	default:
		s.log.Error("job failed", "job", name, "error", err)
	}
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	log logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
