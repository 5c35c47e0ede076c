package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/notifications"
	"scribe/internal/queue"
	"scribe/internal/segment"
	"scribe/internal/services"
	"scribe/internal/services/acquire"
	"scribe/internal/services/speech"
	"scribe/internal/stage"
)

// Deps carries the collaborators every pipeline run needs.
type Deps struct {
	Config   *config.Config
	Store    *queue.Store
	Logger   *slog.Logger
	Acquirer acquire.Client
	Speech   speech.Client
	Notifier notifications.Service
}

// Pipeline drives one task through acquire, validate, segment, transcribe,
// merge, and notify. A single Pipeline is shared across tasks; all per-run
// state lives in the runState created by Run.
type Pipeline struct {
	deps Deps
}

// New constructs a pipeline over the given collaborators.
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &Pipeline{deps: deps}
}

// runState is the in-memory scratch shared between a run's stages: the chunk
// plan and results never hit the store, only the merged outcome does.
type runState struct {
	chunks   []segment.Chunk
	results  []segment.ChunkResult
	audioURL string
}

type step struct {
	status  queue.Status
	weight  float64
	label   string
	handler stage.Handler
	// skip is consulted after earlier stages have populated state.
	skip func(*runState, *queue.Task) bool
}

func (p *Pipeline) steps(state *runState) []step {
	return []step{
		{
			status:  queue.StatusAcquiring,
			weight:  0.1,
			label:   "downloading source media",
			handler: &acquireStage{deps: &p.deps},
		},
		{
			status:  queue.StatusValidating,
			weight:  0.2,
			label:   "validating media file",
			handler: &validateStage{deps: &p.deps},
		},
		{
			status:  queue.StatusSegmenting,
			weight:  0.3,
			label:   "planning chunks",
			handler: &segmentStage{deps: &p.deps, state: state},
			skip: func(_ *runState, task *queue.Task) bool {
				return !needsSegmentation(p.deps.Config, task)
			},
		},
		{
			status:  queue.StatusTranscribing,
			weight:  0.3,
			label:   "transcribing",
			handler: &transcribeStage{deps: &p.deps, state: state},
		},
		{
			status:  queue.StatusMerging,
			weight:  0.9,
			label:   "merging chunk transcripts",
			handler: &mergeStage{deps: &p.deps, state: state},
		},
		{
			status:  queue.StatusNotifying,
			weight:  0.95,
			label:   "delivering transcript",
			handler: &notifyStage{deps: &p.deps},
		},
	}
}

// Run executes the full pipeline for one task. cancelRequested is polled at
// stage boundaries; a true result parks the task as cancelled. A context
// cancellation from daemon shutdown leaves the task non-terminal so startup
// recovery can requeue it.
func (p *Pipeline) Run(ctx context.Context, taskID string, cancelRequested func() bool) error {
	if cancelRequested == nil {
		cancelRequested = func() bool { return false }
	}
	runCtx := services.WithTaskID(ctx, taskID)
	logger := logging.WithContext(runCtx, p.deps.Logger)

	state := &runState{}
	var task *queue.Task

	for _, st := range p.steps(state) {
		if err := runCtx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return p.failTask(runCtx, taskID, services.Wrap(services.ErrTimeout, string(st.status), "deadline",
					"task exceeded its processing window", err))
			}
			return err
		}
		if cancelRequested() {
			return p.cancelTask(runCtx, taskID)
		}
		if st.skip != nil && task != nil && st.skip(state, task) {
			continue
		}

		stageCtx := services.WithStage(runCtx, string(st.status))
		stageLogger := logging.WithContext(stageCtx, p.deps.Logger)

		entered, err := p.deps.Store.UpdateTask(stageCtx, taskID, func(t *queue.Task) error {
			t.Status = st.status
			t.SetProgress(st.weight, st.label)
			return nil
		})
		if err != nil {
			return err
		}
		task = entered

		stageStart := time.Now()
		stageLogger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.String("source", task.DisplayName()),
		)

		if err := st.handler.Prepare(stageCtx, task); err != nil {
			return p.handleStageError(stageCtx, taskID, task, err, cancelRequested)
		}
		if err := st.handler.Execute(stageCtx, task); err != nil {
			return p.handleStageError(stageCtx, taskID, task, err, cancelRequested)
		}
		if _, err := p.deps.Store.UpdateTask(stageCtx, taskID, applyRunChanges(task)); err != nil {
			return err
		}

		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", time.Since(stageStart)),
		)
	}

	final, err := p.deps.Store.UpdateTask(runCtx, taskID, func(t *queue.Task) error {
		t.SetSucceeded(t.Result)
		return nil
	})
	if err != nil {
		return err
	}
	p.cleanupStaging(logger, final)
	logger.Info("task succeeded",
		logging.String(logging.FieldEventType, "task_complete"),
		logging.String("transcript_path", final.TranscriptPath),
	)
	return nil
}

// Health reports readiness of the pipeline's external collaborators.
func (p *Pipeline) Health(ctx context.Context) []stage.Health {
	state := &runState{}
	checks := make([]stage.Health, 0, 6)
	for _, st := range p.steps(state) {
		checks = append(checks, st.handler.HealthCheck(ctx))
	}
	return checks
}

func (p *Pipeline) handleStageError(ctx context.Context, taskID string, task *queue.Task, stageErr error, cancelRequested func() bool) error {
	if errors.Is(stageErr, context.Canceled) {
		if cancelRequested() {
			return p.cancelTask(ctx, taskID)
		}
		// Shutdown: leave the task non-terminal for startup recovery.
		return stageErr
	}
	if errors.Is(stageErr, context.DeadlineExceeded) && services.KindOf(stageErr) != services.KindTimeout {
		stageName, _ := services.StageFromContext(ctx)
		stageErr = services.Wrap(services.ErrTimeout, stageName, "deadline",
			"task exceeded its processing window", stageErr)
	}
	// Preserve fields the failing stage already produced (local path etc).
	// The write must survive an expired stage context.
	ctx = context.WithoutCancel(ctx)
	if _, err := p.deps.Store.UpdateTask(ctx, taskID, applyRunChanges(task)); err != nil {
		logging.WithContext(ctx, p.deps.Logger).Error("failed to persist partial stage state", logging.Error(err))
	}
	return p.failTask(ctx, taskID, stageErr)
}

func (p *Pipeline) failTask(ctx context.Context, taskID string, stageErr error) error {
	ctx = context.WithoutCancel(ctx)
	kind := services.KindOf(stageErr)
	message := failureMessage(stageErr)
	logger := logging.WithContext(ctx, p.deps.Logger)

	failed, err := p.deps.Store.UpdateTask(ctx, taskID, func(t *queue.Task) error {
		t.SetFailed(kind, message)
		return nil
	})
	if err != nil {
		logger.Error("failed to persist task failure", logging.Error(err))
		return stageErr
	}

	logger.Error("task failed",
		logging.String(logging.FieldEventType, "task_failure"),
		logging.String(logging.FieldErrorHint, kind),
		logging.Error(stageErr),
	)

	if notifyErr := p.deps.Notifier.NotifyTaskFailed(ctx, failed.DisplayName(), kind, message); notifyErr != nil {
		logger.Warn("failure notification not delivered", logging.Error(notifyErr))
		if _, err := p.deps.Store.UpdateTask(ctx, taskID, func(t *queue.Task) error {
			t.NotificationError = notifyErr.Error()
			return nil
		}); err != nil {
			logger.Error("failed to record notification error", logging.Error(err))
		}
	}
	p.cleanupStaging(logger, failed)
	return stageErr
}

func (p *Pipeline) cancelTask(ctx context.Context, taskID string) error {
	ctx = context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, p.deps.Logger)
	cancelled, err := p.deps.Store.UpdateTask(ctx, taskID, func(t *queue.Task) error {
		t.Status = queue.StatusCancelled
		t.ProgressMessage = "cancelled by request"
		return nil
	})
	if err != nil {
		logger.Error("failed to persist cancellation", logging.Error(err))
		return err
	}
	logger.Info("task cancelled", logging.String(logging.FieldEventType, "task_cancelled"))
	p.cleanupStaging(logger, cancelled)
	return nil
}

func (p *Pipeline) cleanupStaging(logger *slog.Logger, task *queue.Task) {
	if task == nil || strings.TrimSpace(task.LocalPath) == "" {
		return
	}
	if err := os.Remove(task.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("staged media not removed",
			logging.String("path", task.LocalPath),
			logging.Error(err),
		)
	}
}

// applyRunChanges copies the fields stages are allowed to mutate from the
// detached working copy back onto the stored record.
func applyRunChanges(src *queue.Task) func(*queue.Task) error {
	return func(dst *queue.Task) error {
		dst.FileInfo = src.FileInfo
		dst.LocalPath = src.LocalPath
		dst.Result = src.Result
		dst.TranscriptPath = src.TranscriptPath
		dst.NotificationError = src.NotificationError
		dst.ChunkCount = src.ChunkCount
		dst.ChunkSeconds = src.ChunkSeconds
		dst.SetProgress(src.Progress, src.ProgressMessage)
		return nil
	}
}

func failureMessage(err error) string {
	if err == nil {
		return "stage failed without error detail"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "stage failed without error detail"
	}
	return msg
}

func needsSegmentation(cfg *config.Config, task *queue.Task) bool {
	threshold := float64(cfg.Workflow.SegmentationThreshold)
	if threshold <= 0 {
		return false
	}
	return task.FileInfo.DurationSeconds > threshold
}
