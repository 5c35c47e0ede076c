package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir       string `toml:"state_dir"`
	StagingDir     string `toml:"staging_dir"`
	TranscriptsDir string `toml:"transcripts_dir"`
	LogDir         string `toml:"log_dir"`
	APIBind        string `toml:"api_bind"`
	APIToken       string `toml:"api_token"`
}

// Workflow contains dispatcher and pipeline tuning.
type Workflow struct {
	MaxConcurrency        int      `toml:"max_concurrency"`
	QueueCapacity         int      `toml:"queue_capacity"`
	MaxRetries            int      `toml:"max_retries"`
	TaskTimeout           int      `toml:"task_timeout_seconds"`
	SegmentationThreshold int      `toml:"segmentation_threshold_seconds"`
	ChunkOverlap          int      `toml:"chunk_overlap_seconds"`
	AllowedExtensions     []string `toml:"allowed_extensions"`
	MaxFileSizeMB         int      `toml:"max_file_size_mb"`
}

// Monitor contains remote folder watching configuration.
type Monitor struct {
	Enabled  bool   `toml:"enabled"`
	FolderID string `toml:"folder_id"`
	Interval int    `toml:"interval_seconds"`
}

// Speech contains configuration for the transcription backend.
type Speech struct {
	BaseURL      string `toml:"base_url"`
	APIKey       string `toml:"api_key"`
	Timeout      int    `toml:"timeout_seconds"`
	PollInterval int    `toml:"poll_interval_seconds"`
}

// Acquisition contains configuration for source file retrieval.
type Acquisition struct {
	Timeout      int    `toml:"timeout_seconds"`
	DriveBaseURL string `toml:"drive_base_url"`
	DriveToken   string `toml:"drive_token"`
}

// Notifications contains configuration for the mail gateway used to deliver
// completed transcripts.
type Notifications struct {
	MailURL        string `toml:"mail_url"`
	MailToken      string `toml:"mail_token"`
	Recipient      string `toml:"recipient"`
	RequestTimeout int    `toml:"request_timeout"`
	Transcripts    bool   `toml:"transcripts"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Scribe.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Workflow: dispatcher concurrency, queue bounds, pipeline thresholds
//   - Monitor: remote folder polling
//   - Speech: transcription backend connection
//   - Acquisition: source download settings
//   - Notifications: transcript mail delivery
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Monitor       Monitor       `toml:"monitor"`
	Speech        Speech        `toml:"speech"`
	Acquisition   Acquisition   `toml:"acquisition"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The boolean result reports
// whether a config file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
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

	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scribe.toml")
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

// applyEnvOverrides lets secrets come from the environment so they can stay
// out of the config file.
func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("SCRIBE_SPEECH_API_KEY")); v != "" {
		c.Speech.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("SCRIBE_API_TOKEN")); v != "" {
		c.Paths.APIToken = v
	}
	if v := strings.TrimSpace(os.Getenv("SCRIBE_MAIL_TOKEN")); v != "" {
		c.Notifications.MailToken = v
	}
	if v := strings.TrimSpace(os.Getenv("SCRIBE_DRIVE_TOKEN")); v != "" {
		c.Acquisition.DriveToken = v
	}
}

func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.Paths.StateDir,
		&c.Paths.StagingDir,
		&c.Paths.TranscriptsDir,
		&c.Paths.LogDir,
	} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	normalized := make([]string, 0, len(c.Workflow.AllowedExtensions))
	for _, ext := range c.Workflow.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	if len(normalized) > 0 {
		c.Workflow.AllowedExtensions = normalized
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.StagingDir, c.Paths.TranscriptsDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ExtensionAllowed reports whether the given filename passes the configured
// extension allow-list. Files without an extension are rejected.
func (c *Config) ExtensionAllowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	for _, allowed := range c.Workflow.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// MaxFileSizeBytes returns the configured size ceiling in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Workflow.MaxFileSizeMB) * 1024 * 1024
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

// ExpandPath resolves ~ and relative segments in a user-supplied path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
