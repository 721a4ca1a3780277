package commands

import (
	"context"

	"github.com/raoulx24/share-archiver/internal/archive"
	"github.com/raoulx24/share-archiver/internal/backup"
	"github.com/raoulx24/share-archiver/internal/config"
	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/metrics"
	"github.com/raoulx24/share-archiver/internal/retention"
	"github.com/raoulx24/share-archiver/internal/snapshot"
)

func (a *app) runner(cfg *config.Config, log logging.Logger, m metrics.Metrics) (*backup.Runner, error) {
	svc, err := a.newShare(cfg.Source, log)
	if err != nil {
		return nil, err
	}
	return backup.NewRunner(svc, backup.WithLogger(log), backup.WithMetrics(m)), nil
}

// retainPolicy returns nil when retain is nil, meaning no pruning.
func retainPolicy(retain *int) (snapshot.RetentionPolicy, error) {
	if retain == nil {
		return nil, nil
	}
	p, err := retention.RetainLatest(*retain)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (a *app) snapshotRun(ctx context.Context, cfg *config.Config, log logging.Logger, m metrics.Metrics) (backup.SnapshotResult, error) {
	if err := cfg.ValidateSource(); err != nil {
		return backup.SnapshotResult{}, err
	}
	policy, err := retainPolicy(cfg.Snapshot.Retain)
	if err != nil {
		return backup.SnapshotResult{}, err
	}
	r, err := a.runner(cfg, log, m)
	if err != nil {
		return backup.SnapshotResult{}, err
	}
	return r.Snapshot(ctx, backup.SnapshotRequest{
		Share:       cfg.Source.ShareName,
		MetadataKey: cfg.Snapshot.MetadataKey,
		Policy:      policy,
	})
}

func (a *app) destination(cfg *config.Config, mode string) (backup.Destination, string, error) {
	switch mode {
	case config.ModeBackupLocal:
		if err := cfg.ValidateLocal(); err != nil {
			return nil, "", err
		}
		return backup.Local{Dir: cfg.Local.Path}, cfg.Local.FilePrefix, nil
	case config.ModeBackupBlob:
		if err := cfg.ValidateBlob(); err != nil {
			return nil, "", err
		}
		dst, err := a.newBlob(cfg.Blob)
		return dst, cfg.Blob.BlobPrefix, err
	default:
		return nil, "", archerrors.Validationf("mode %q does not produce an archive", mode)
	}
}

func (a *app) archiveRun(ctx context.Context, cfg *config.Config, mode string, log logging.Logger, m metrics.Metrics) (backup.ArchiveResult, error) {
	format, err := archive.ParseFormat(cfg.Backup.ArchiveType)
	if err != nil {
		return backup.ArchiveResult{}, err
	}
	dst, prefix, err := a.destination(cfg, mode)
	if err != nil {
		return backup.ArchiveResult{}, err
	}
	r, err := a.runner(cfg, log, m)
	if err != nil {
		return backup.ArchiveResult{}, err
	}
	return r.Archive(ctx, backup.ArchiveRequest{
		Share:       cfg.Source.ShareName,
		MetadataKey: cfg.Backup.MetadataKey,
		Prefix:      prefix,
		Format:      format,
		Prefetch:    cfg.Backup.Prefetch,
		Destination: dst,
	})
}

// runMode executes one run of mode against cfg.
func (a *app) runMode(ctx context.Context, cfg *config.Config, mode string, log logging.Logger, m metrics.Metrics) error {
	switch mode {
	case config.ModeSnapshot:
		_, err := a.snapshotRun(ctx, cfg, log, m)
		return err
	case config.ModeBackupLocal, config.ModeBackupBlob:
		_, err := a.archiveRun(ctx, cfg, mode, log, m)
		return err
	default:
		return archerrors.Validationf("unknown mode %q", mode)
	}
}
