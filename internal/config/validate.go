package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateSpeech(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxConcurrency < 1 {
		return errors.New("workflow.max_concurrency must be at least 1")
	}
	if c.Workflow.QueueCapacity < 1 {
		return errors.New("workflow.queue_capacity must be at least 1")
	}
	if c.Workflow.MaxRetries < 0 {
		return errors.New("workflow.max_retries must not be negative")
	}
	if c.Workflow.TaskTimeout < 1 {
		return errors.New("workflow.task_timeout_seconds must be at least 1")
	}
	if c.Workflow.SegmentationThreshold < 1 {
		return errors.New("workflow.segmentation_threshold_seconds must be at least 1")
	}
	if c.Workflow.ChunkOverlap < 0 {
		return errors.New("workflow.chunk_overlap_seconds must not be negative")
	}
	if c.Workflow.ChunkOverlap*2 >= c.Workflow.SegmentationThreshold {
		return fmt.Errorf(
			"workflow.chunk_overlap_seconds (%d) must be less than half of workflow.segmentation_threshold_seconds (%d)",
			c.Workflow.ChunkOverlap, c.Workflow.SegmentationThreshold,
		)
	}
	if len(c.Workflow.AllowedExtensions) == 0 {
		return errors.New("workflow.allowed_extensions must not be empty")
	}
	if c.Workflow.MaxFileSizeMB < 1 {
		return errors.New("workflow.max_file_size_mb must be at least 1")
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if !c.Monitor.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Monitor.FolderID) == "" {
		return errors.New("monitor.folder_id must be set when monitor.enabled is true")
	}
	if c.Monitor.Interval < 1 {
		return errors.New("monitor.interval_seconds must be at least 1")
	}
	return nil
}

func (c *Config) validateSpeech() error {
	if strings.TrimSpace(c.Speech.BaseURL) == "" {
		return errors.New("speech.base_url must be set")
	}
	if c.Speech.Timeout < 1 {
		return errors.New("speech.timeout_seconds must be at least 1")
	}
	if c.Speech.PollInterval < 1 {
		return errors.New("speech.poll_interval_seconds must be at least 1")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if strings.TrimSpace(c.Notifications.MailURL) == "" {
		return nil
	}
	if strings.TrimSpace(c.Notifications.Recipient) == "" {
		return errors.New("notifications.recipient must be set when notifications.mail_url is configured")
	}
	if c.Notifications.RequestTimeout < 1 {
		return errors.New("notifications.request_timeout must be at least 1")
	}
	return nil
}
