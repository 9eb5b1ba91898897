package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"gopkg.in/yaml.v3"
)

// MinBackupInterval is the floor applied to the configured backup interval.
const MinBackupInterval = 60 * time.Second

// DefaultMaxBackups is the retention count used when backup.max_backups is
// not set.
const DefaultMaxBackups = 24

var prefixPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

type Container struct {
	Name               string `yaml:"name"`
	Runtime            string `yaml:"runtime,omitempty"`
	StopTimeoutSeconds int    `yaml:"stop_timeout_seconds,omitempty"`
}

// Settings is the part of the config that is re-read on every scheduler
// iteration.
type Settings struct {
	IntervalSeconds   int  `yaml:"interval_seconds"`
	MaxBackups        int  `yaml:"max_backups"`
	AutoSafetyBackup  bool `yaml:"auto_safety_backup"`
	VerifyAfterCreate bool `yaml:"verify_after_create"`
}

func (s Settings) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

type Status struct {
	ContainerIntervalMS      int `yaml:"container_interval_ms,omitempty"`
	BackupsIntervalSeconds   int `yaml:"backups_interval_seconds,omitempty"`
	SchedulerIntervalSeconds int `yaml:"scheduler_interval_seconds,omitempty"`
	DiskIntervalSeconds      int `yaml:"disk_interval_seconds,omitempty"`
}

type S3Config struct {
	Enabled      bool               `yaml:"enabled"`
	Bucket       string             `yaml:"bucket"`
	Prefix       string             `yaml:"prefix"`
	Region       string             `yaml:"region"`
	Endpoint     string             `yaml:"endpoint"`
	StorageClass types.StorageClass `yaml:"storage_class"`
	Retry        struct {
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"retry,omitempty"`
}

type Config struct {
	BaseDir       string    `yaml:"base_dir"`
	SaveDir       string    `yaml:"save_dir"`
	BackupDir     string    `yaml:"backup_dir"`
	ArchivePrefix string    `yaml:"archive_prefix,omitempty"`
	Listen        string    `yaml:"listen,omitempty"`
	LogLevel      string    `yaml:"log_level,omitempty"`
	Container     Container `yaml:"container"`
	Backup        Settings  `yaml:"backup"`
	Status        Status    `yaml:"status,omitempty"`
	S3            S3Config  `yaml:"s3"`
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	cfg := Config{
		Backup: Settings{
			MaxBackups:        DefaultMaxBackups,
			VerifyAfterCreate: true,
		},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir is required")
	}
	if c.SaveDir == "" {
		return fmt.Errorf("save_dir is required")
	}
	if c.BackupDir == "" {
		return fmt.Errorf("backup_dir is required")
	}
	if c.ArchivePrefix != "" && !prefixPattern.MatchString(c.ArchivePrefix) {
		return fmt.Errorf("archive_prefix must match %s", prefixPattern)
	}
	if c.Container.Name == "" {
		return fmt.Errorf("container.name is required")
	}
	if c.Container.Runtime != "" && c.Container.Runtime != "docker" && c.Container.Runtime != "podman" {
		return fmt.Errorf("container.runtime must be docker or podman, got %q", c.Container.Runtime)
	}
	if c.Container.StopTimeoutSeconds < 0 {
		return fmt.Errorf("container.stop_timeout_seconds must be non-negative")
	}
	if c.Backup.IntervalSeconds < 0 {
		return fmt.Errorf("backup.interval_seconds must be non-negative")
	}
	if c.Backup.MaxBackups < 1 {
		return fmt.Errorf("backup.max_backups must be at least 1")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required when s3 is enabled")
		}
		if c.S3.Region == "" {
			return fmt.Errorf("s3.region is required when s3 is enabled")
		}
	}
	return nil
}

func (c *Config) Prefix() string {
	if c.ArchivePrefix != "" {
		return c.ArchivePrefix
	}
	return "backup"
}

func (c *Config) ListenAddr() string {
	if c.Listen != "" {
		return c.Listen
	}
	return ":8080"
}

func (c *Config) RuntimeBinary() string {
	if c.Container.Runtime != "" {
		return c.Container.Runtime
	}
	return "docker"
}

func (c *Config) StopTimeout() time.Duration {
	if c.Container.StopTimeoutSeconds > 0 {
		return time.Duration(c.Container.StopTimeoutSeconds) * time.Second
	}
	return 60 * time.Second
}

func (c *Config) S3RetryAttempts() int {
	if c.S3.Retry.MaxAttempts > 0 {
		return c.S3.Retry.MaxAttempts
	}
	return 3
}

func (c *Config) S3StorageClass() types.StorageClass {
	if c.S3.StorageClass != "" {
		return c.S3.StorageClass
	}
	return types.StorageClassStandard
}

func orDefault(v int, def time.Duration, unit time.Duration) time.Duration {
	if v > 0 {
		return time.Duration(v) * unit
	}
	return def
}

func (s Status) ContainerInterval() time.Duration {
	return orDefault(s.ContainerIntervalMS, 500*time.Millisecond, time.Millisecond)
}

func (s Status) BackupsInterval() time.Duration {
	return orDefault(s.BackupsIntervalSeconds, 5*time.Second, time.Second)
}

func (s Status) SchedulerInterval() time.Duration {
	return orDefault(s.SchedulerIntervalSeconds, 5*time.Second, time.Second)
}

func (s Status) DiskInterval() time.Duration {
	return orDefault(s.DiskIntervalSeconds, 30*time.Second, time.Second)
}

// FileSettings re-reads the config file on every call so the scheduler picks
// up edits without a restart.
type FileSettings struct {
	Path string
}

func (f FileSettings) Settings() (Settings, error) {
	cfg, err := Load(f.Path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to reload settings: %w", err)
	}
	return cfg.Backup, nil
}

// Static serves a fixed Settings value.
type Static Settings

func (s Static) Settings() (Settings, error) {
	return Settings(s), nil
}
