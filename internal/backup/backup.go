// Package backup runs the console modes: taking managed snapshots and
// archiving a snapshot of a share into a local file or a blob.
package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/raoulx24/share-archiver/internal/archive"
	"github.com/raoulx24/share-archiver/internal/config"
	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/metrics"
	"github.com/raoulx24/share-archiver/internal/pipeline"
	"github.com/raoulx24/share-archiver/internal/share"
	"github.com/raoulx24/share-archiver/internal/sink"
	"github.com/raoulx24/share-archiver/internal/snapshot"
	"github.com/raoulx24/share-archiver/internal/source"
)

// ArchiveTimeFormat is the snapshot time layout used in archive names.
const ArchiveTimeFormat = "20060102-150405"

// Runner executes snapshot and archive runs against one share service.
type Runner struct {
	svc     share.Service
	log     logging.Logger
	metrics metrics.Metrics
	now     func() time.Time
}

type Option func(*Runner)

func WithLogger(l logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRunner(svc share.Service, opts ...Option) *Runner {
	r := &Runner{
		svc:     svc,
		log:     logging.Discard(),
		metrics: metrics.Noop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SnapshotRequest describes a snapshot run.
type SnapshotRequest struct {
	Share       string
	MetadataKey string
	// Policy, when set, prunes the managed snapshots after creating one.
	Policy snapshot.RetentionPolicy
}

type SnapshotResult struct {
	Created snapshot.Snapshot
	Pruned  []snapshot.Snapshot
}

// Snapshot creates a managed snapshot and optionally prunes older ones.
func (r *Runner) Snapshot(ctx context.Context, req SnapshotRequest) (res SnapshotResult, err error) {
	log := r.runLogger(config.ModeSnapshot, req.Share)
	defer r.observe(config.ModeSnapshot, r.now(), &err)

	mgr, err := r.manager(req.MetadataKey, log)
	if err != nil {
		return res, err
	}

	if res.Created, err = mgr.CreateManaged(ctx, req.Share); err != nil {
		return res, err
	}
	if req.Policy != nil {
		if res.Pruned, err = mgr.Prune(ctx, req.Share, req.Policy); err != nil {
			return res, err
		}
	}
	log.Info("snapshot run finished", "snapshot", res.Created.String(), "pruned", len(res.Pruned))
	return res, nil
}

// ArchiveRequest describes an archive run.
type ArchiveRequest struct {
	Share       string
	MetadataKey string
	Prefix      string
	Format      archive.Format
	// Prefetch bounds the entries buffered ahead of the writer; 0 means the pipeline default.
	Prefetch    int
	Destination Destination
}

type ArchiveResult struct {
	Snapshot snapshot.Snapshot
	Location string
	Bytes    int64
}

// ArchiveName returns <prefix>-<yyyyMMdd-HHmmss>.<ext> for a snapshot taken at t.
func ArchiveName(prefix string, t time.Time, f archive.Format) string {
	return fmt.Sprintf("%s-%s.%s", prefix, t.UTC().Format(ArchiveTimeFormat), f.Extension())
}

// Archive snapshots the share, streams the snapshot into the destination and
// deletes the snapshot again. The deletion runs even when ctx is canceled; a
// deletion failure is logged and only returned if the archive itself succeeded.
func (r *Runner) Archive(ctx context.Context, req ArchiveRequest) (res ArchiveResult, err error) {
	if req.Destination == nil {
		return res, archerrors.Validationf("archive run needs a destination")
	}
	mode := req.Destination.Mode()
	log := r.runLogger(mode, req.Share)
	defer r.observe(mode, r.now(), &err)

	if req.Format.Extension() == "" {
		return res, archerrors.Validationf("unsupported archive format %d", int(req.Format))
	}
	prefetch := req.Prefetch
	if prefetch == 0 {
		prefetch = pipeline.DefaultCapacity
	}
	if prefetch < 1 {
		return res, archerrors.Validationf("prefetch %d must be at least 1", prefetch)
	}
	mgr, err := r.manager(req.MetadataKey, log)
	if err != nil {
		return res, err
	}

	snap, err := mgr.CreateManaged(ctx, req.Share)
	if err != nil {
		return res, err
	}
	res.Snapshot = snap

	defer func() {
		derr := mgr.DeleteManaged(context.WithoutCancel(ctx), snap.Share, snap.Time)
		if derr == nil {
			return
		}
		log.Error("failed to delete snapshot", "snapshot", snap.String(), "error", derr)
		if err == nil {
			err = errors.Wrap(derr, "cleaning up snapshot")
		}
	}()

	name := ArchiveName(req.Prefix, snap.Time, req.Format)
	dst, err := req.Destination.Open(ctx, name, log)
	if err != nil {
		return res, errors.Wrapf(err, "opening destination %s", name)
	}
	res.Location = dst.Location()
	log.Info("backing up snapshot", "snapshot", snap.String(), "destination", res.Location, "format", req.Format.String())

	counter := &countingSink{Sink: dst}
	if err = r.stream(ctx, snap, req.Format, prefetch, counter, log); err != nil {
		if aerr := dst.Abort(); aerr != nil {
			log.Warn("failed to discard partial archive", "destination", res.Location, "error", aerr)
		}
		return res, err
	}
	if err = dst.Close(); err != nil {
		return res, errors.Wrapf(err, "finalizing %s", res.Location)
	}

	res.Bytes = counter.n
	log.Info("backup finished", "destination", res.Location, "size", humanize.IBytes(uint64(counter.n)))
	return res, nil
}

func (r *Runner) stream(ctx context.Context, snap snapshot.Snapshot, format archive.Format, prefetch int, w sink.Sink, log logging.Logger) error {
	aw, err := archive.New(format, w, archive.WithLogger(log))
	if err != nil {
		return err
	}
	src := source.NewShareProvider(r.svc.Tree(snap.Share, snap.Time), log)

	p, err := pipeline.New(src, aw,
		pipeline.WithCapacity(prefetch),
		pipeline.WithLogger(log),
		pipeline.WithMetrics(r.metrics),
	)
	if err != nil {
		return err
	}
	return p.Run(ctx)
}

func (r *Runner) manager(key string, log logging.Logger) (*snapshot.Manager, error) {
	return snapshot.NewManager(r.svc, key,
		snapshot.WithLogger(log),
		snapshot.WithMetrics(r.metrics),
		snapshot.WithClock(r.now),
	)
}

func (r *Runner) runLogger(mode, shareName string) logging.Logger {
	return logging.With(r.log, "run_id", uuid.NewString(), "mode", mode, "share", shareName)
}

func (r *Runner) observe(mode string, start time.Time, err *error) {
	status := metrics.Status(*err, archerrors.IsCanceled(*err))
	r.metrics.ObserveRun(mode, status, r.now().Sub(start).Seconds())
}

// countingSink counts the archive bytes handed to the destination.
type countingSink struct {
	sink.Sink
	n int64
}

func (c *countingSink) Write(p []byte) (int, error) {
	n, err := c.Sink.Write(p)
	c.n += int64(n)
	return n, err
}
