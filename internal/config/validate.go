package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
)

// Job modes accepted by the scheduler.
const (
	ModeSnapshot    = "snapshot"
	ModeBackupLocal = "backuplocal"
	ModeBackupBlob  = "backupblob"
)

// CronParser parses the standard five-field cron expressions used by schedule jobs.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateAccount checks that a usable credential source is present.
func (a AccountConfig) ValidateAccount(field string) error {
	if a.ConnectionString != "" {
		return nil
	}
	if a.AccountName == "" {
		return archerrors.Validationf("%s: connectionString or accountName is required", field)
	}
	return nil
}

// ValidateSource checks the settings every share-reading command needs.
func (c *Config) ValidateSource() error {
	if err := c.Source.ValidateAccount("source"); err != nil {
		return err
	}
	if strings.TrimSpace(c.Source.ShareName) == "" {
		return archerrors.Validationf("source.shareName is required")
	}
	if c.Snapshot.Retain != nil && *c.Snapshot.Retain < 0 {
		return archerrors.Validationf("snapshot.retain must be >= 0, got %d", *c.Snapshot.Retain)
	}
	if c.Backup.Prefetch < 1 {
		return archerrors.Validationf("backup.prefetch must be >= 1, got %d", c.Backup.Prefetch)
	}
	return nil
}

// ValidateLocal checks the local archive destination.
func (c *Config) ValidateLocal() error {
	if err := c.ValidateSource(); err != nil {
		return err
	}
	if c.Local.Path == "" {
		return archerrors.Validationf("local.path is required")
	}
	return nil
}

// ValidateBlob checks the blob archive destination.
func (c *Config) ValidateBlob() error {
	if err := c.ValidateSource(); err != nil {
		return err
	}
	if err := c.Blob.Account.ValidateAccount("blob.account"); err != nil {
		return err
	}
	if c.Blob.Container == "" {
		return archerrors.Validationf("blob.container is required")
	}
	if c.Blob.BlockSize < 1 || int64(c.Blob.BlockSize) > MaxBlockSize {
		return archerrors.Validationf("blob.blockSize must be between 1 and %d, got %d", MaxBlockSize, c.Blob.BlockSize)
	}
	return nil
}

// ValidateSchedule checks every job, including the destination its mode needs.
func (c *Config) ValidateSchedule() error {
	if len(c.Schedule.Jobs) == 0 {
		return archerrors.Validationf("schedule.jobs is empty")
	}

	seen := make(map[string]bool, len(c.Schedule.Jobs))
	for i, j := range c.Schedule.Jobs {
		if j.Name == "" {
			return archerrors.Validationf("schedule.jobs[%d]: name is required", i)
		}
		if seen[j.Name] {
			return archerrors.Validationf("schedule.jobs[%d]: duplicate name %q", i, j.Name)
		}
		seen[j.Name] = true

		if _, err := CronParser.Parse(j.Cron); err != nil {
			return errors.Mark(errors.Wrapf(err, "schedule.jobs[%d] %q: cron", i, j.Name), archerrors.ErrValidation)
		}

		var err error
		switch j.Mode {
		case ModeSnapshot:
			err = c.ValidateSource()
		case ModeBackupLocal:
			err = c.ValidateLocal()
		case ModeBackupBlob:
			err = c.ValidateBlob()
		default:
			err = archerrors.Validationf("schedule.jobs[%d] %q: unknown mode %q", i, j.Name, j.Mode)
		}
		if err != nil {
			return err
		}
	}

	switch c.ConfigReload.Method {
	case "auto", "poll", "fsnotify":
	default:
		return archerrors.Validationf("configReload.method %q is not one of auto, poll, fsnotify", c.ConfigReload.Method)
	}
	return nil
}
