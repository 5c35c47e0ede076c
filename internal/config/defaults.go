package config

const (
	defaultStateDir              = "~/.local/share/scribe"
	defaultStagingDir            = "~/.local/share/scribe/staging"
	defaultTranscriptsDir        = "~/.local/share/scribe/transcripts"
	defaultLogDir                = "~/.local/share/scribe/logs"
	defaultAPIBind               = "127.0.0.1:8765"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultMaxConcurrency        = 2
	defaultQueueCapacity         = 32
	defaultMaxRetries            = 3
	defaultTaskTimeout           = 3600
	defaultSegmentationThreshold = 600
	defaultChunkOverlap          = 5
	defaultMaxFileSizeMB         = 2048
	defaultMonitorInterval       = 300
	defaultSpeechBaseURL         = "https://api.assemblyai.com/v2"
	defaultSpeechTimeout         = 1800
	defaultSpeechPollInterval    = 5
	defaultAcquireTimeout        = 600
	defaultDriveBaseURL          = "https://drive.google.com"
	defaultNotifyRequestTimeout  = 10
)

func defaultExtensions() []string {
	return []string{".mp4", ".avi", ".mov", ".mkv", ".webm", ".m4v", ".mp3", ".wav", ".m4a"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:       defaultStateDir,
			StagingDir:     defaultStagingDir,
			TranscriptsDir: defaultTranscriptsDir,
			LogDir:         defaultLogDir,
			APIBind:        defaultAPIBind,
		},
		Workflow: Workflow{
			MaxConcurrency:        defaultMaxConcurrency,
			QueueCapacity:         defaultQueueCapacity,
			MaxRetries:            defaultMaxRetries,
			TaskTimeout:           defaultTaskTimeout,
			SegmentationThreshold: defaultSegmentationThreshold,
			ChunkOverlap:          defaultChunkOverlap,
			AllowedExtensions:     defaultExtensions(),
			MaxFileSizeMB:         defaultMaxFileSizeMB,
		},
		Monitor: Monitor{
			Interval: defaultMonitorInterval,
		},
		Speech: Speech{
			BaseURL:      defaultSpeechBaseURL,
			Timeout:      defaultSpeechTimeout,
			PollInterval: defaultSpeechPollInterval,
		},
		Acquisition: Acquisition{
			Timeout:      defaultAcquireTimeout,
			DriveBaseURL: defaultDriveBaseURL,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Transcripts:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
