package config

import (
	"os"
	"regexp"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// matches $(VAR_NAME)
var envPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// replaces $(VAR) with os.Getenv(VAR)
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		key := mapEnvKey(envPattern.FindStringSubmatch(m)[1])
		return os.Getenv(key)
	})
}

// Load reads, expands, parses and defaults the config file at path.
// Validation is left to the caller since each command needs a different subset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshalling yaml")
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Snapshot.MetadataKey == "" {
		c.Snapshot.MetadataKey = DefaultSnapshotMetadataKey
	}
	if c.Backup.MetadataKey == "" {
		c.Backup.MetadataKey = DefaultBackupMetadataKey
	}
	if c.Backup.ArchiveType == "" {
		c.Backup.ArchiveType = DefaultArchiveType
	}
	if c.Backup.Prefetch == 0 {
		c.Backup.Prefetch = DefaultPrefetch
	}
	if c.Local.FilePrefix == "" {
		c.Local.FilePrefix = DefaultFilePrefix
	}
	if c.Blob.BlobPrefix == "" {
		c.Blob.BlobPrefix = DefaultFilePrefix
	}
	if c.Blob.BlockSize == 0 {
		c.Blob.BlockSize = DefaultBlockSize
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsPrefix
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.ConfigReload.Method == "" {
		c.ConfigReload.Method = "auto"
	}
}
