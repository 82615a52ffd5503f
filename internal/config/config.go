package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	StorageDir string `toml:"storage_dir"`
}

// Database selects the backing store shared by the job queue, job records and catalog.
type Database struct {
	Driver     string `toml:"driver"`
	DSN        string `toml:"dsn"`
	CatalogDSN string `toml:"catalog_dsn"`
}

// API contains HTTP server settings.
type API struct {
	Bind      string `toml:"bind"`
	Token     string `toml:"token"`
	PublicURL string `toml:"public_url"`
}

// Storage configures the object store backend and signed upload credentials.
type Storage struct {
	Backend          string `toml:"backend"`
	PublicBaseURL    string `toml:"public_base_url"`
	SigningSecret    string `toml:"signing_secret"`
	UploadTTLSeconds int    `toml:"upload_ttl_seconds"`
	RcloneRemote     string `toml:"rclone_remote"`
	RcloneBasePath   string `toml:"rclone_base_path"`
	RcloneBinary     string `toml:"rclone_binary"`
}

// Limits holds per-file-type size ceilings in bytes.
type Limits struct {
	VideoMaxBytes  int64 `toml:"video_max_bytes"`
	PosterMaxBytes int64 `toml:"poster_max_bytes"`
	AvatarMaxBytes int64 `toml:"avatar_max_bytes"`
}

// Queue contains retry and lease settings for the job queue.
type Queue struct {
	MaxAttempts         int `toml:"max_attempts"`
	BackoffBaseSeconds  int `toml:"backoff_base_seconds"`
	BackoffMaxSeconds   int `toml:"backoff_max_seconds"`
	LeaseSeconds        int `toml:"lease_seconds"`
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// Workflow contains worker pool sizing and phase timeouts.
type Workflow struct {
	Workers                   int `toml:"workers"`
	DownloadTimeoutSeconds    int `toml:"download_timeout_seconds"`
	ProcessTimeoutSeconds     int `toml:"process_timeout_seconds"`
	HeartbeatIntervalSeconds  int `toml:"heartbeat_interval_seconds"`
	ErrorRetryIntervalSeconds int `toml:"error_retry_interval_seconds"`
}

// Tools names the external binaries the pipeline shells out to.
type Tools struct {
	FFmpeg            string   `toml:"ffmpeg"`
	FFprobe           string   `toml:"ffprobe"`
	YtDlp             string   `toml:"ytdlp"`
	YtDlpFormat       string   `toml:"ytdlp_format"`
	YtDlpHosts        []string `toml:"ytdlp_hosts"`
	HLSSegmentSeconds int      `toml:"hls_segment_seconds"`
	// AllowPrivateNetworks lets direct HTTP downloads reach loopback,
	// private and link-local addresses. Off by default.
	AllowPrivateNetworks bool `toml:"allow_private_networks"`
}

// Retention controls cleanup of terminal jobs and stale staging data.
type Retention struct {
	Schedule           string `toml:"schedule"`
	MaxAgeHours        int    `toml:"max_age_hours"`
	StagingMaxAgeHours int    `toml:"staging_max_age_hours"`
}

// Notifications configures ntfy push messages for finished jobs.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	NotifyCompleted       bool   `toml:"notify_completed"`
	NotifyFailed          bool   `toml:"notify_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vodingest.
//
// Configuration sections by subsystem:
//   - Paths: data, staging and local object storage directories
//   - Database: queue/job record connection string and catalog database
//   - API: HTTP bind address, shared bearer token, public URL
//   - Storage: object store backend, public base URL, upload signing
//   - Limits: per-file-type size ceilings
//   - Queue: attempt ceiling, backoff and lease timing
//   - Workflow: worker count and phase timeouts
//   - Tools: ffmpeg/ffprobe/yt-dlp binaries
//   - Retention: cleanup schedule and ages
//   - Notifications: ntfy topic and which job outcomes to announce
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Database      Database      `toml:"database"`
	API           API           `toml:"api"`
	Storage       Storage       `toml:"storage"`
	Limits        Limits        `toml:"limits"`
	Queue         Queue         `toml:"queue"`
	Workflow      Workflow      `toml:"workflow"`
	Tools         Tools         `toml:"tools"`
	Retention     Retention     `toml:"retention"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A .env file in the
// working directory is loaded first so its values act as environment
// fallbacks. The returned config has all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, "", false, err
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vodingest.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.StagingDir}
	if c.Storage.Backend == StorageBackendLocal {
		dirs = append(dirs, c.Paths.StorageDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MaxBytesFor returns the configured size ceiling for a file type name.
func (c *Config) MaxBytesFor(fileType string) int64 {
	switch fileType {
	case "video":
		return c.Limits.VideoMaxBytes
	case "poster":
		return c.Limits.PosterMaxBytes
	case "avatar":
		return c.Limits.AvatarMaxBytes
	default:
		return 0
	}
}

// LockPath returns the single-instance lock file for the daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vodingest.lock")
}

// PIDPath returns the file the running daemon records its process id in.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "vodingest.pid")
}

// NotificationTimeout returns the per-request ntfy timeout.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeoutSeconds) * time.Second
}

// RetentionLockPath returns the lock file guarding retention runs across processes.
func (c *Config) RetentionLockPath() string {
	return filepath.Join(c.Paths.DataDir, "retention.lock")
}

// UploadTTL returns the lifetime of signed upload credentials.
func (c *Config) UploadTTL() time.Duration {
	return time.Duration(c.Storage.UploadTTLSeconds) * time.Second
}

// LeaseDuration returns the queue visibility timeout.
func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.Queue.LeaseSeconds) * time.Second
}

// PollInterval returns the queue poll interval for idle workers.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Queue.PollIntervalSeconds) * time.Second
}

// BackoffBase returns the base retry delay.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Queue.BackoffBaseSeconds) * time.Second
}

// BackoffMax returns the retry delay cap.
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Queue.BackoffMaxSeconds) * time.Second
}

// DownloadTimeout returns the maximum duration of the download phase.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Workflow.DownloadTimeoutSeconds) * time.Second
}

// ProcessTimeout returns the maximum duration of the processing phase.
func (c *Config) ProcessTimeout() time.Duration {
	return time.Duration(c.Workflow.ProcessTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns how often workers extend their lease.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatIntervalSeconds) * time.Second
}

// ErrorRetryInterval returns the pause after a queue read failure.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Workflow.ErrorRetryIntervalSeconds) * time.Second
}

// RetentionMaxAge returns how long terminal jobs are kept.
func (c *Config) RetentionMaxAge() time.Duration {
	return time.Duration(c.Retention.MaxAgeHours) * time.Hour
}

// StagingMaxAge returns how long abandoned staging directories are kept.
func (c *Config) StagingMaxAge() time.Duration {
	return time.Duration(c.Retention.StagingMaxAgeHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
