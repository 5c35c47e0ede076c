package main

import (
	"log/slog"

	"scribe/internal/config"
	"scribe/internal/daemon"
	"scribe/internal/monitor"
	"scribe/internal/notifications"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
	"scribe/internal/services/acquire"
	"scribe/internal/services/folder"
	"scribe/internal/services/speech"
	"scribe/internal/workflow"
)

// buildDaemon wires the service clients, pipeline, dispatcher, and optional
// folder monitor into a daemon instance.
func buildDaemon(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	pipe := pipeline.New(pipeline.Deps{
		Config:   cfg,
		Store:    store,
		Logger:   logger,
		Acquirer: acquire.NewClient(cfg),
		Speech:   speech.NewClient(cfg),
		Notifier: notifications.NewService(cfg),
	})
	dispatcher := workflow.NewDispatcher(cfg, store, pipe, logger)

	var mon *monitor.Monitor
	if cfg.Monitor.FolderID != "" {
		var err error
		mon, err = monitor.New(cfg, folder.NewLister(cfg), dispatcher, store, logger)
		if err != nil {
			return nil, err
		}
	}

	return daemon.New(cfg, store, dispatcher, pipe, mon, logger)
}
