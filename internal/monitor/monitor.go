package monitor

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/folder"
)

const defaultInterval = 5 * time.Minute

// Submitter enqueues a transcription task for a discovered file.
type Submitter interface {
	Submit(ctx context.Context, source queue.Source, estimatedTime string) (*queue.Task, error)
}

// TaskReader looks up previously submitted tasks so the monitor can tell when
// they settle.
type TaskReader interface {
	GetByID(ctx context.Context, id string) (*queue.Task, error)
}

// Monitor polls a remote folder and submits newly discovered media for
// transcription. Files are remembered in a persistent ledger; an id counts as
// handled only once its task reaches a terminal status, so interrupted work is
// picked up again on a later tick.
type Monitor struct {
	cfg       *config.Config
	lister    folder.Lister
	submitter Submitter
	tasks     TaskReader
	state     *State
	logger    *slog.Logger
	interval  time.Duration

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastCheck time.Time
	lastError string
}

// Status is a snapshot of the monitor loop.
type Status struct {
	Running        bool
	FolderID       string
	Interval       time.Duration
	LastCheck      time.Time
	LastError      string
	ProcessedCount int
	PendingCount   int
}

// New builds a Monitor over the configured folder. The ledger lives in the
// state directory next to the task database.
func New(cfg *config.Config, lister folder.Lister, submitter Submitter, tasks TaskReader, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	statePath := ""
	if cfg.Paths.StateDir != "" {
		statePath = filepath.Join(cfg.Paths.StateDir, "monitor_state.json")
	}
	state, err := NewState(statePath)
	if err != nil {
		return nil, err
	}

	interval := time.Duration(cfg.Monitor.Interval) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Monitor{
		cfg:       cfg,
		lister:    lister,
		submitter: submitter,
		tasks:     tasks,
		state:     state,
		logger:    logger,
		interval:  interval,
	}, nil
}

// Start launches the polling loop. The first check runs immediately.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("monitor already running")
	}
	if m.cfg.Monitor.FolderID == "" {
		return services.Wrap(services.ErrValidation, "monitor", "start", "no folder configured to watch", nil)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go m.loop(loopCtx)

	m.logger.Info("folder monitor started",
		logging.String("folder_id", m.cfg.Monitor.FolderID),
		logging.String("interval", m.interval.String()),
		logging.String(logging.FieldEventType, "monitor_started"),
	)
	return nil
}

// Stop halts the polling loop and waits for an in-flight check to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.logger.Info("folder monitor stopped",
		logging.String(logging.FieldEventType, "monitor_stopped"),
	)
}

// Status reports the current loop state and ledger counts.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	processed, pending := m.state.Counts()
	return Status{
		Running:        m.running,
		FolderID:       m.cfg.Monitor.FolderID,
		Interval:       m.interval,
		LastCheck:      m.lastCheck,
		LastError:      m.lastError,
		ProcessedCount: processed,
		PendingCount:   pending,
	}
}

// CheckNow runs a single poll outside the ticker schedule. It works whether or
// not the loop is running.
func (m *Monitor) CheckNow(ctx context.Context) error {
	if m.cfg.Monitor.FolderID == "" {
		return services.Wrap(services.ErrValidation, "monitor", "check", "no folder configured to watch", nil)
	}
	return m.poll(ctx)
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	if err := m.poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("folder check failed", logging.Error(err))
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("folder check failed", logging.Error(err))
			}
		}
	}
}

// poll reconciles settled tasks, lists the folder, and submits anything new.
// A listing failure leaves the ledger untouched so the next tick retries.
func (m *Monitor) poll(ctx context.Context) error {
	m.reconcile(ctx)

	files, err := m.lister.List(ctx, m.cfg.Monitor.FolderID)

	m.mu.Lock()
	m.lastCheck = time.Now().UTC()
	if err != nil {
		m.lastError = err.Error()
	} else {
		m.lastError = ""
	}
	m.mu.Unlock()

	if err != nil {
		return err
	}

	for _, file := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.state.Known(file.ID) {
			continue
		}
		if !m.cfg.ExtensionAllowed(file.Name) {
			continue
		}
		if limit := m.cfg.MaxFileSizeBytes(); limit > 0 && file.SizeBytes > limit {
			m.logger.Warn("skipping oversize discovered file",
				logging.String("file", file.Name),
				logging.Int64("size_bytes", file.SizeBytes),
				logging.String(logging.FieldEventType, "monitor_skipped"),
			)
			continue
		}

		task, err := m.submitter.Submit(ctx, queue.Source{DriveID: file.ID, Filename: file.Name}, "")
		if err != nil {
			if errors.Is(err, services.ErrCapacity) {
				// Queue is full; the id stays unmarked so the next tick retries.
				m.logger.Warn("queue full, deferring discovered file",
					logging.String("file", file.Name),
					logging.String(logging.FieldEventType, "monitor_deferred"),
				)
				return nil
			}
			m.logger.Error("failed to submit discovered file",
				logging.String("file", file.Name),
				logging.Error(err),
			)
			continue
		}

		if err := m.state.MarkSubmitted(file.ID, file.Name, task.ID); err != nil {
			m.logger.Error("failed to persist monitor state", logging.Error(err))
		}
		m.logger.Info("discovered file submitted",
			logging.String(logging.FieldTaskID, task.ID),
			logging.String("file", file.Name),
			logging.String(logging.FieldEventType, "monitor_submitted"),
		)
	}
	return nil
}

// reconcile marks ledger entries processed once their tasks settle. Entries
// whose tasks vanished from the store are also finalized.
func (m *Monitor) reconcile(ctx context.Context) {
	for _, entry := range m.state.Pending() {
		if entry.TaskID == "" {
			continue
		}
		task, err := m.tasks.GetByID(ctx, entry.TaskID)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				if err := m.state.MarkProcessed(entry.FileID); err != nil {
					m.logger.Error("failed to persist monitor state", logging.Error(err))
				}
			}
			continue
		}
		if task.Status.IsTerminal() {
			if err := m.state.MarkProcessed(entry.FileID); err != nil {
				m.logger.Error("failed to persist monitor state", logging.Error(err))
			}
		}
	}
}
