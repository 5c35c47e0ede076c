package daemon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"scribe/internal/api"
	"scribe/internal/config"
	"scribe/internal/language"
	"scribe/internal/logging"
	"scribe/internal/monitor"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/workflow"
)

// Daemon coordinates the dispatcher, folder monitor, and HTTP API, and
// enforces single-instance execution through a lock file.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *queue.Store
	dispatcher *workflow.Dispatcher
	pipeline   *pipeline.Pipeline
	monitor    *monitor.Monitor

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	api     *apiServer
}

// New constructs a daemon with initialized dependencies. The monitor may be
// nil when no folder is configured.
func New(cfg *config.Config, store *queue.Store, dispatcher *workflow.Dispatcher, pipe *pipeline.Pipeline, mon *monitor.Monitor, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || dispatcher == nil || pipe == nil {
		return nil, errors.New("daemon requires config, store, dispatcher, and pipeline")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "scribed.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		dispatcher: dispatcher,
		pipeline:   pipe,
		monitor:    mon,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the dispatcher, the folder
// monitor when enabled, and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scribe daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.dispatcher.Start(runCtx); err != nil {
		d.releaseOnStartFailure()
		return fmt.Errorf("start dispatcher: %w", err)
	}

	if d.monitor != nil && d.cfg.Monitor.Enabled {
		if err := d.monitor.Start(runCtx); err != nil {
			d.logger.Warn("folder monitor not started", logging.Error(err))
		}
	}

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.dispatcher.Stop()
		d.releaseOnStartFailure()
		return err
	}
	d.api = srv
	if err := d.api.start(runCtx); err != nil {
		d.dispatcher.Stop()
		d.releaseOnStartFailure()
		return err
	}

	d.running.Store(true)
	d.logger.Info("scribe daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) releaseOnStartFailure() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	_ = d.lock.Unlock()
}

// Stop halts background processing and releases the daemon lock. In-flight
// tasks are interrupted and picked up again by recovery on the next start.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.api != nil {
		d.api.stop()
	}
	if d.monitor != nil {
		d.monitor.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.dispatcher.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("scribe daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
	)
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Submit validates a submission request and enqueues it.
func (d *Daemon) Submit(ctx context.Context, req api.SubmitRequest) (*queue.Task, error) {
	url := strings.TrimSpace(req.URL)
	driveID := strings.TrimSpace(req.DriveID)
	if url == "" && driveID == "" {
		return nil, services.Wrap(services.ErrValidation, "daemon", "submit", "either url or drive_id is required", nil)
	}
	if url != "" && driveID != "" {
		return nil, services.Wrap(services.ErrValidation, "daemon", "submit", "url and drive_id are mutually exclusive", nil)
	}
	if req.DurationSeconds < 0 {
		return nil, services.Wrap(services.ErrValidation, "daemon", "submit", "duration_seconds cannot be negative", nil)
	}

	source := queue.Source{
		URL:             url,
		DriveID:         driveID,
		Filename:        strings.TrimSpace(req.Filename),
		Language:        language.Normalize(req.Language),
		DurationSeconds: req.DurationSeconds,
	}
	return d.dispatcher.Submit(ctx, source, estimateTime(req.DurationSeconds))
}

// GetTask returns one task record.
func (d *Daemon) GetTask(ctx context.Context, id string) (*queue.Task, error) {
	return d.store.GetByID(ctx, id)
}

// ListTasks returns tasks filtered by optional statuses.
func (d *Daemon) ListTasks(ctx context.Context, statuses ...queue.Status) ([]*queue.Task, error) {
	return d.store.List(ctx, statuses...)
}

// RemoveTask deletes a settled task from the store.
func (d *Daemon) RemoveTask(ctx context.Context, id string) error {
	return d.store.Remove(ctx, id)
}

// CancelTask requests cancellation of a queued or running task.
func (d *Daemon) CancelTask(ctx context.Context, id string) (*queue.Task, error) {
	return d.dispatcher.Cancel(ctx, id)
}

// Monitor exposes the folder monitor, or nil when none is configured.
func (d *Daemon) Monitor() *monitor.Monitor {
	return d.monitor
}

// Health aggregates queue counts, dispatcher state, and stage readiness.
func (d *Daemon) Health(ctx context.Context) (api.HealthResponse, error) {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		return api.HealthResponse{}, err
	}
	counts := make(map[string]int, len(stats))
	for status, count := range stats {
		counts[string(status)] = count
	}

	dispatch := d.dispatcher.Status()
	stages := api.FromStageHealth(d.pipeline.Health(ctx))

	overall := "ok"
	for _, s := range stages {
		if !s.Ready {
			overall = "degraded"
			break
		}
	}
	return api.HealthResponse{
		Status:   overall,
		Queue:    counts,
		Active:   dispatch.ActiveIDs,
		Queued:   dispatch.QueuedIDs,
		Capacity: dispatch.Capacity,
		Stages:   stages,
	}, nil
}

// estimateTime predicts how long transcription will take from the declared
// media duration. Unknown durations fall back to a broad default.
func estimateTime(durationSeconds float64) string {
	if durationSeconds <= 0 {
		return "2-5 minutes"
	}
	minutes := int(math.Ceil(durationSeconds / 240))
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%d-%d minutes", minutes, minutes*2+1)
}
