package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver: unsupported value %q (want sqlite or postgres)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required for postgres. Set INGEST_DATABASE_DSN or edit the config file")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageBackendLocal:
	case StorageBackendRclone:
		if c.Storage.RcloneRemote == "" {
			return errors.New("storage.rclone_remote is required when storage.backend is rclone")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (want local or rclone)", c.Storage.Backend)
	}
	if strings.TrimSpace(c.Storage.SigningSecret) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("storage.signing_secret is required. Set INGEST_SIGNING_SECRET env var or edit %s (create with 'vodingest config init')", defaultPath)
	}
	if len(c.Storage.SigningSecret) < 16 {
		return errors.New("storage.signing_secret must be at least 16 characters")
	}
	if _, err := url.ParseRequestURI(c.Storage.PublicBaseURL); err != nil {
		return fmt.Errorf("storage.public_base_url: %w", err)
	}
	if c.Storage.UploadTTLSeconds <= 0 {
		return errors.New("storage.upload_ttl_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Limits.VideoMaxBytes <= 0 {
		return errors.New("limits.video_max_bytes must be positive")
	}
	if c.Limits.PosterMaxBytes <= 0 {
		return errors.New("limits.poster_max_bytes must be positive")
	}
	if c.Limits.AvatarMaxBytes <= 0 {
		return errors.New("limits.avatar_max_bytes must be positive")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.MaxAttempts <= 0 {
		return errors.New("queue.max_attempts must be positive")
	}
	if c.Queue.BackoffBaseSeconds < 0 {
		return errors.New("queue.backoff_base_seconds must be non-negative")
	}
	if c.Queue.BackoffMaxSeconds < c.Queue.BackoffBaseSeconds {
		return errors.New("queue.backoff_max_seconds must be at least queue.backoff_base_seconds")
	}
	if c.Queue.LeaseSeconds <= 0 {
		return errors.New("queue.lease_seconds must be positive")
	}
	if c.Queue.PollIntervalSeconds < 0 {
		return errors.New("queue.poll_interval_seconds must be non-negative")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers <= 0 {
		return errors.New("workflow.workers must be positive")
	}
	if c.Workflow.DownloadTimeoutSeconds <= 0 {
		return errors.New("workflow.download_timeout_seconds must be positive")
	}
	if c.Workflow.ProcessTimeoutSeconds <= 0 {
		return errors.New("workflow.process_timeout_seconds must be positive")
	}
	if c.Workflow.HeartbeatIntervalSeconds <= 0 {
		return errors.New("workflow.heartbeat_interval_seconds must be positive")
	}
	if c.Workflow.HeartbeatIntervalSeconds >= c.Queue.LeaseSeconds {
		return errors.New("workflow.heartbeat_interval_seconds must be shorter than queue.lease_seconds")
	}
	if c.Workflow.ErrorRetryIntervalSeconds < 0 {
		return errors.New("workflow.error_retry_interval_seconds must be non-negative")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if strings.TrimSpace(c.Retention.Schedule) != "" {
		if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
			return fmt.Errorf("retention.schedule: %w", err)
		}
	}
	if c.Retention.MaxAgeHours <= 0 {
		return errors.New("retention.max_age_hours must be positive")
	}
	if c.Retention.StagingMaxAgeHours <= 0 {
		return errors.New("retention.staging_max_age_hours must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.NtfyTopic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) topic url, got %q", c.Notifications.NtfyTopic)
	}
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		return errors.New("notifications.request_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
