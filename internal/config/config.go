package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Security
		Remote
		Sync
		Audit
		Tasks
		Logging
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path     string
		LogLevel string // GORM log level: silent, error, warn, info
	}
	Security struct {
		SecretKey string // Source secret for credential encryption
	}
	Remote struct {
		Timeout  time.Duration
		PageSize int
	}
	Sync struct {
		SchedulerEnabled bool
		StaleRunTimeout  time.Duration // 0 disables the stale run sweep
		FuzzyThreshold   float64
		SnapshotDir      string // Directory for fetched-record snapshots, empty disables
	}
	Audit struct {
		RetentionDays int // Days to keep audit events (default: 30)
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		TaskTimeout     time.Duration
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Logging struct {
		Level string
		JSON  bool
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8190)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("database_log_level", "silent")
	v.SetDefault("secret_key", "")

	// Remote client defaults
	v.SetDefault("remote_timeout", "30s")
	v.SetDefault("remote_page_size", 100)

	// Sync defaults
	v.SetDefault("sync_scheduler_enabled", true)
	v.SetDefault("sync_stale_run_timeout", "0s")
	v.SetDefault("sync_fuzzy_threshold", 0.85)
	v.SetDefault("sync_snapshot_dir", "")
	v.SetDefault("audit_retention_days", 30)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_timeout", "30m")
	v.SetDefault("task_release_after", "45m")
	v.SetDefault("task_cleanup_interval", "1h")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path:     v.GetString("DATABASE_PATH"),
			LogLevel: v.GetString("DATABASE_LOG_LEVEL"),
		},
		Security: Security{
			SecretKey: v.GetString("SECRET_KEY"),
		},
		Remote: Remote{
			Timeout:  v.GetDuration("REMOTE_TIMEOUT"),
			PageSize: v.GetInt("REMOTE_PAGE_SIZE"),
		},
		Sync: Sync{
			SchedulerEnabled: v.GetBool("SYNC_SCHEDULER_ENABLED"),
			StaleRunTimeout:  v.GetDuration("SYNC_STALE_RUN_TIMEOUT"),
			FuzzyThreshold:   v.GetFloat64("SYNC_FUZZY_THRESHOLD"),
			SnapshotDir:      v.GetString("SYNC_SNAPSHOT_DIR"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			TaskTimeout:     v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Logging: Logging{
			Level: v.GetString("LOG_LEVEL"),
			JSON:  v.GetBool("LOG_JSON"),
		},
	}
}
