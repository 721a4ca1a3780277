package commands

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/raoulx24/share-archiver/internal/config"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/metrics"
	"github.com/raoulx24/share-archiver/internal/scheduler"
	"github.com/raoulx24/share-archiver/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the configured schedule until interrupted",
		Long: `Run every schedule.jobs entry on its cron schedule (UTC) until SIGINT or
SIGTERM. A job never overlaps itself; triggers arriving while it runs are
coalesced into one follow-up run.

The configuration is reloaded on SIGHUP and, with configReload.enabled, when
the file changes. An invalid file is logged and the running schedule kept.
With metrics.listen set, Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// daemon is the state of a running serve command.
type daemon struct {
	app *app

	// reloadMu serializes reloads from the watcher and SIGHUP.
	reloadMu sync.Mutex
	cfg      atomic.Pointer[config.Config]

	sched   *scheduler.Scheduler
	metrics metrics.Metrics
	log     logging.Logger
}

func (a *app) newDaemon(cfg *config.Config, m metrics.Metrics) *daemon {
	d := &daemon{app: a, metrics: m, log: a.log}
	d.cfg.Store(cfg)
	d.sched = scheduler.New(d.run, a.log)
	return d
}

// run executes a job against the configuration current at trigger time.
func (d *daemon) run(ctx context.Context, job config.JobConfig) error {
	log := logging.With(d.log, "job", job.Name)
	return d.app.runMode(ctx, d.cfg.Load(), job.Mode, log, d.metrics)
}

// reload swaps in next when it validates and its schedule applies.
func (d *daemon) reload(next *config.Config) {
	if err := next.ValidateSchedule(); err != nil {
		d.log.Error("ignoring invalid configuration", "error", err)
		return
	}

	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()
	prev := d.cfg.Swap(next)
	if err := d.sched.Reload(next.Schedule.Jobs); err != nil {
		d.cfg.Store(prev)
		d.log.Error("ignoring configuration, schedule rejected", "error", err)
		return
	}
	if next.Metrics != prev.Metrics {
		d.log.Warn("metrics settings changed, restart to apply")
	}
	d.log.Info("configuration reloaded", "jobs", len(next.Schedule.Jobs))
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.ValidateSchedule(); err != nil {
		return err
	}

	var m metrics.Metrics = metrics.Noop{}
	var srv *http.Server
	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.NewProm(cfg.Metrics.Namespace, reg)

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	d := a.newDaemon(cfg, m)
	g, gctx := errgroup.WithContext(ctx)

	if err := d.sched.Start(gctx, cfg.Schedule.Jobs); err != nil {
		return err
	}
	defer d.sched.Stop()

	if srv != nil {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return errors.Wrapf(err, "listening on %s", srv.Addr)
		}
		a.log.Info("serving metrics", "addr", ln.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if cfg.ConfigReload.Enabled {
		w := watcher.New(a.configPath, cfg.ConfigReload, a.log, d.reload)
		g.Go(func() error { return w.Start(gctx) })
	}

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				next, err := config.Load(a.configPath)
				if err != nil {
					a.log.Error("config reload failed", "error", err)
					continue
				}
				d.reload(next)
			}
		}
	})

	a.log.Info("scheduler running", "jobs", len(cfg.Schedule.Jobs))
	err := g.Wait()
	a.log.Info("shutting down, waiting for running jobs")
	return err
}
