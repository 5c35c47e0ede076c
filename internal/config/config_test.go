package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[paths]
state_dir = "` + filepath.Join(dir, "state") + `"
staging_dir = "` + filepath.Join(dir, "staging") + `"

[workflow]
max_concurrency = 4
queue_capacity = 8
allowed_extensions = ["MP4", "mov"]

[monitor]
enabled = true
folder_id = "folder-123"
interval_seconds = 60
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatalf("expected config file at %s to be detected", resolved)
	}
	if cfg.Workflow.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", cfg.Workflow.MaxConcurrency)
	}
	if cfg.Workflow.QueueCapacity != 8 {
		t.Errorf("QueueCapacity = %d, want 8", cfg.Workflow.QueueCapacity)
	}
	if got := cfg.Workflow.AllowedExtensions; len(got) != 2 || got[0] != ".mp4" || got[1] != ".mov" {
		t.Errorf("AllowedExtensions = %v, want normalized [.mp4 .mov]", got)
	}
	if cfg.Monitor.FolderID != "folder-123" {
		t.Errorf("FolderID = %q", cfg.Monitor.FolderID)
	}
	if cfg.Workflow.MaxRetries != defaultMaxRetries {
		t.Errorf("MaxRetries = %d, want default %d", cfg.Workflow.MaxRetries, defaultMaxRetries)
	}
}

func TestLoadRejectsInvalidWorkflow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[workflow]
max_concurrency = 0
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "max_concurrency") {
		t.Fatalf("expected max_concurrency validation error, got %v", err)
	}
}

func TestMonitorRequiresFolderWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.Monitor.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled monitor without folder_id")
	}
}

func TestExtensionAllowed(t *testing.T) {
	cfg := Default()
	tests := []struct {
		name string
		want bool
	}{
		{"meeting.mp4", true},
		{"MEETING.MP4", true},
		{"audio.wav", true},
		{"slides.pdf", false},
		{"noext", false},
	}
	for _, tc := range tests {
		if got := cfg.ExtensionAllowed(tc.name); got != tc.want {
			t.Errorf("ExtensionAllowed(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCRIBE_SPEECH_API_KEY", "env-key")
	cfg := Default()
	cfg.applyEnvOverrides()
	if cfg.Speech.APIKey != "env-key" {
		t.Errorf("Speech.APIKey = %q, want env-key", cfg.Speech.APIKey)
	}
}
