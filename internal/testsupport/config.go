package testsupport

import (
	"path/filepath"
	"testing"

	"scribe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.TranscriptsDir = filepath.Join(base, "transcripts")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Speech.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithFolderID enables folder monitoring against the given remote folder.
func WithFolderID(id string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Monitor.Enabled = true
		cfg.Monitor.FolderID = id
	}
}

// WithoutAPI disables the HTTP surface on the test config.
func WithoutAPI() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Paths.APIBind = ""
	}
}
