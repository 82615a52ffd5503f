package config

const (
	defaultConfigPath = "~/.config/vodingest/config.toml"

	defaultDataDir    = "~/.local/share/vodingest"
	defaultStagingDir = "~/.local/share/vodingest/staging"
	defaultStorageDir = "~/.local/share/vodingest/objects"

	defaultDatabaseDriver = DriverSQLite
	defaultSQLiteFile     = "ingest.db"

	defaultAPIBind      = "127.0.0.1:7490"
	defaultAPIPublicURL = "http://127.0.0.1:7490"

	defaultStorageBackend   = StorageBackendLocal
	defaultPublicBaseURL    = "http://127.0.0.1:7490/media"
	defaultUploadTTLSeconds = 900
	defaultRcloneBinary     = "rclone"

	defaultVideoMaxBytes  int64 = 2 << 30
	defaultPosterMaxBytes int64 = 10 << 20
	defaultAvatarMaxBytes int64 = 5 << 20

	defaultMaxAttempts         = 5
	defaultBackoffBaseSeconds  = 10
	defaultBackoffMaxSeconds   = 600
	defaultLeaseSeconds        = 120
	defaultPollIntervalSeconds = 5

	defaultWorkers                   = 2
	defaultDownloadTimeoutSeconds    = 3600
	defaultProcessTimeoutSeconds     = 7200
	defaultHeartbeatIntervalSeconds  = 30
	defaultErrorRetryIntervalSeconds = 10

	defaultFFmpeg            = "ffmpeg"
	defaultFFprobe           = "ffprobe"
	defaultYtDlp             = "yt-dlp"
	defaultYtDlpFormat       = "bv*[height<=1080]+ba/b[height<=1080]/b"
	defaultHLSSegmentSeconds = 6

	defaultRetentionSchedule  = "@hourly"
	defaultRetentionMaxAge    = 24 * 30
	defaultStagingMaxAgeHours = 48

	defaultNotificationTimeoutSeconds = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Supported object store backends.
const (
	StorageBackendLocal  = "local"
	StorageBackendRclone = "rclone"
)

var defaultYtDlpHosts = []string{
	"youtube.com",
	"youtu.be",
	"vimeo.com",
	"dailymotion.com",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			StorageDir: defaultStorageDir,
		},
		Database: Database{
			Driver: defaultDatabaseDriver,
		},
		API: API{
			Bind:      defaultAPIBind,
			PublicURL: defaultAPIPublicURL,
		},
		Storage: Storage{
			Backend:          defaultStorageBackend,
			PublicBaseURL:    defaultPublicBaseURL,
			UploadTTLSeconds: defaultUploadTTLSeconds,
			RcloneBinary:     defaultRcloneBinary,
		},
		Limits: Limits{
			VideoMaxBytes:  defaultVideoMaxBytes,
			PosterMaxBytes: defaultPosterMaxBytes,
			AvatarMaxBytes: defaultAvatarMaxBytes,
		},
		Queue: Queue{
			MaxAttempts:         defaultMaxAttempts,
			BackoffBaseSeconds:  defaultBackoffBaseSeconds,
			BackoffMaxSeconds:   defaultBackoffMaxSeconds,
			LeaseSeconds:        defaultLeaseSeconds,
			PollIntervalSeconds: defaultPollIntervalSeconds,
		},
		Workflow: Workflow{
			Workers:                   defaultWorkers,
			DownloadTimeoutSeconds:    defaultDownloadTimeoutSeconds,
			ProcessTimeoutSeconds:     defaultProcessTimeoutSeconds,
			HeartbeatIntervalSeconds:  defaultHeartbeatIntervalSeconds,
			ErrorRetryIntervalSeconds: defaultErrorRetryIntervalSeconds,
		},
		Tools: Tools{
			FFmpeg:            defaultFFmpeg,
			FFprobe:           defaultFFprobe,
			YtDlp:             defaultYtDlp,
			YtDlpFormat:       defaultYtDlpFormat,
			YtDlpHosts:        append([]string(nil), defaultYtDlpHosts...),
			HLSSegmentSeconds: defaultHLSSegmentSeconds,
		},
		Retention: Retention{
			Schedule:           defaultRetentionSchedule,
			MaxAgeHours:        defaultRetentionMaxAge,
			StagingMaxAgeHours: defaultStagingMaxAgeHours,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotificationTimeoutSeconds,
			NotifyCompleted:       true,
			NotifyFailed:          true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
