// Package config holds the YAML configuration of share-archiver.
package config

import "time"

const (
	DefaultConfigPath = "config.yaml"

	// Metadata keys stamped on the snapshots each mode creates.
	DefaultSnapshotMetadataKey = "AzureShareBackupSnapshotTime"
	DefaultBackupMetadataKey   = "AzureShareBackupZipSnapshot"

	DefaultPrefetch      = 8
	DefaultArchiveType   = "zip"
	DefaultBlockSize     = 8 << 20
	DefaultFilePrefix    = "backup"
	DefaultMetricsPrefix = "share_archiver"
)

// MaxBlockSize is the largest block the Blob service stages.
const MaxBlockSize int64 = 4000 << 20

type Config struct {
	Source       AccountConfig  `yaml:"source"`
	Snapshot     SnapshotConfig `yaml:"snapshot"`
	Backup       BackupConfig   `yaml:"backup"`
	Local        LocalConfig    `yaml:"local"`
	Blob         BlobConfig     `yaml:"blob"`
	Schedule     ScheduleConfig `yaml:"schedule"`
	Logging      LoggingConfig  `yaml:"logging"`
	Metrics      MetricsConfig  `yaml:"metrics"`
	ConfigReload ReloadConfig   `yaml:"configReload"`
}

// AccountConfig selects a storage account and its credentials.
// Resolution order: connection string, SAS token, account key, default Azure credential.
type AccountConfig struct {
	ConnectionString string `yaml:"connectionString"`
	AccountName      string `yaml:"accountName"`
	AccountKey       string `yaml:"accountKey"`
	SASToken         string `yaml:"sasToken"`
	// Endpoint overrides the default https://<account>.<service>.core.windows.net/ URL.
	Endpoint  string `yaml:"endpoint"`
	ShareName string `yaml:"shareName"`
}

type SnapshotConfig struct {
	MetadataKey string `yaml:"metadataKey"`
	// Retain keeps the latest N managed snapshots after each snapshot run; nil disables pruning.
	Retain *int `yaml:"retain"`
}

type BackupConfig struct {
	MetadataKey string `yaml:"metadataKey"`
	ArchiveType string `yaml:"archiveType"` // zip, tar, targzip, tarbzip2
	Prefetch    int    `yaml:"prefetch"`
}

type LocalConfig struct {
	Path       string `yaml:"path"`
	FilePrefix string `yaml:"filePrefix"`
}

type BlobConfig struct {
	Account        AccountConfig `yaml:"account"`
	Container      string        `yaml:"container"`
	BlobPrefix     string        `yaml:"blobPrefix"`
	AllowOverwrite bool          `yaml:"allowOverwrite"`
	BlockSize      int           `yaml:"blockSize"`
}

type ScheduleConfig struct {
	Jobs []JobConfig `yaml:"jobs"`
}

type JobConfig struct {
	Name string `yaml:"name"`
	Cron string `yaml:"cron"`
	Mode string `yaml:"mode"` // snapshot, backuplocal, backupblob
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // "info", "debug", etc.
	Format string `yaml:"format"` // "json", "text"
}

type MetricsConfig struct {
	Listen    string `yaml:"listen"` // e.g. ":9090"; empty disables the endpoint
	Namespace string `yaml:"namespace"`
}

type ReloadConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Method         string        `yaml:"method"` // "auto", "poll", "fsnotify"
	PollInterval   time.Duration `yaml:"pollInterval"`
	DebounceWindow time.Duration `yaml:"debounceWindow"`
}
