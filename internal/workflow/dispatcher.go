package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
)

// Runner executes the per-task pipeline. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, taskID string, cancelRequested func() bool) error
}

// activeTask tracks one in-flight pipeline run.
type activeTask struct {
	cancelRequested atomic.Bool
}

// Dispatcher admits tasks into a bounded FIFO and runs at most
// max_concurrency pipelines at once. Chunk-level concurrency inside a
// pipeline is not governed here.
type Dispatcher struct {
	cfg    *config.Config
	store  *queue.Store
	runner Runner
	logger *slog.Logger

	maxConcurrency int
	capacity       int
	taskTimeout    time.Duration

	mu sync.Mutex
	// reserved counts admitted submits whose store create is still in
	// flight; they hold queue slots so the bound survives concurrent
	// submitters.
	reserved int
	fifo     []string
	active   map[string]*activeTask
	running  bool
	cancel  context.CancelFunc
	runCtx  context.Context
	wg      sync.WaitGroup

	// kick wakes the dispatch loop after a submit or a completion.
	kick chan struct{}
}

// Status is a point-in-time snapshot of the dispatcher.
type Status struct {
	Running   bool
	QueuedIDs []string
	ActiveIDs []string
	Capacity  int
}

// NewDispatcher constructs a dispatcher over the given pipeline runner.
func NewDispatcher(cfg *config.Config, store *queue.Store, runner Runner, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	maxConcurrency := cfg.Workflow.MaxConcurrency
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	capacity := cfg.Workflow.QueueCapacity
	if capacity < 1 {
		capacity = 1
	}
	timeout := time.Duration(cfg.Workflow.TaskTimeout) * time.Second

	return &Dispatcher{
		cfg:            cfg,
		store:          store,
		runner:         runner,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		capacity:       capacity,
		taskTimeout:    timeout,
		active:         make(map[string]*activeTask),
		kick:           make(chan struct{}, 1),
	}
}

// Start recovers interrupted tasks, seeds the queue, and begins dispatching.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("dispatcher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.runCtx = runCtx
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	requeued, aborted, err := d.store.RecoverIncomplete(ctx, d.cfg.Workflow.MaxRetries)
	if err != nil {
		d.Stop()
		return fmt.Errorf("recover interrupted tasks: %w", err)
	}
	if len(requeued) > 0 || len(aborted) > 0 {
		d.logger.Info("startup recovery finished",
			logging.Int("requeued", len(requeued)),
			logging.Int("aborted", len(aborted)),
			logging.String(logging.FieldEventType, "recovery_complete"),
		)
	}

	d.mu.Lock()
	d.fifo = append(d.fifo, requeued...)
	d.mu.Unlock()

	d.wg.Add(1)
	go d.dispatchLoop(runCtx)
	d.kickDispatch()
	return nil
}

// Stop halts dispatching and waits for in-flight pipelines to return.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
}

// Submit admits a new task. The capacity check happens before anything is
// persisted: a full queue creates no task at all.
func (d *Dispatcher) Submit(ctx context.Context, source queue.Source, estimatedTime string) (*queue.Task, error) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil, errors.New("dispatcher not running")
	}
	pending := len(d.fifo) + d.reserved
	if pending >= d.capacity {
		d.mu.Unlock()
		return nil, services.Wrap(services.ErrCapacity, "dispatch", "submit",
			fmt.Sprintf("queue is full (%d pending, capacity %d)", pending, d.capacity), nil)
	}
	// Hold the slot across the store write so racing submits see it.
	d.reserved++
	d.mu.Unlock()

	task, err := d.store.Create(ctx, source, estimatedTime)

	d.mu.Lock()
	d.reserved--
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	d.fifo = append(d.fifo, task.ID)
	d.mu.Unlock()
	d.kickDispatch()

	d.logger.Info("task submitted",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String("source", task.DisplayName()),
		logging.String(logging.FieldEventType, "task_submitted"),
	)
	return task, nil
}

// Cancel stops a task. Queued tasks cancel immediately; active tasks get a
// request flag their pipeline checks at the next stage boundary. Terminal
// tasks are rejected.
func (d *Dispatcher) Cancel(ctx context.Context, id string) (*queue.Task, error) {
	d.mu.Lock()
	for i, queued := range d.fifo {
		if queued == id {
			d.fifo = append(d.fifo[:i], d.fifo[i+1:]...)
			d.mu.Unlock()
			return d.store.UpdateTask(ctx, id, func(t *queue.Task) error {
				t.Status = queue.StatusCancelled
				t.ProgressMessage = "cancelled before start"
				return nil
			})
		}
	}
	if running, ok := d.active[id]; ok {
		running.cancelRequested.Store(true)
		d.mu.Unlock()
		return d.store.GetByID(ctx, id)
	}
	d.mu.Unlock()

	task, err := d.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, services.Wrap(services.ErrValidation, "dispatch", "cancel",
			fmt.Sprintf("task %s already %s", id, task.Status), nil)
	}
	// Queued in the store but unknown to the scheduler (e.g. submitted by a
	// prior process). Safe to cancel directly.
	return d.store.UpdateTask(ctx, id, func(t *queue.Task) error {
		t.Status = queue.StatusCancelled
		t.ProgressMessage = "cancelled before start"
		return nil
	})
}

// Status reports the dispatcher's queue and active set.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	queued := make([]string, len(d.fifo))
	copy(queued, d.fifo)
	activeIDs := make([]string, 0, len(d.active))
	for id := range d.active {
		activeIDs = append(activeIDs, id)
	}
	return Status{
		Running:   d.running,
		QueuedIDs: queued,
		ActiveIDs: activeIDs,
		Capacity:  d.capacity,
	}
}

func (d *Dispatcher) kickDispatch() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) dispatchLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.kick:
		}
		d.drainQueue(ctx)
	}
}

// drainQueue starts queued tasks until the concurrency ceiling or an empty
// queue stops it.
func (d *Dispatcher) drainQueue(ctx context.Context) {
	for {
		d.mu.Lock()
		if !d.running || len(d.fifo) == 0 || len(d.active) >= d.maxConcurrency {
			d.mu.Unlock()
			return
		}
		id := d.fifo[0]
		d.fifo = d.fifo[1:]
		running := &activeTask{}
		d.active[id] = running
		d.wg.Add(1)
		d.mu.Unlock()

		go d.runTask(ctx, id, running)
	}
}

func (d *Dispatcher) runTask(ctx context.Context, id string, running *activeTask) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.active, id)
		d.mu.Unlock()
		d.kickDispatch()
	}()

	taskCtx := ctx
	var cancelTimeout context.CancelFunc
	if d.taskTimeout > 0 {
		taskCtx, cancelTimeout = context.WithTimeout(ctx, d.taskTimeout)
		defer cancelTimeout()
	}

	err := d.runner.Run(taskCtx, id, func() bool { return running.cancelRequested.Load() })
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// Daemon shutdown; recovery requeues the task on next start.
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		d.forceTimeout(id)
		return
	}
	d.logger.Error("pipeline run failed",
		logging.String(logging.FieldTaskID, id),
		logging.Error(err),
	)
}

// forceTimeout guarantees a watchdog-expired task lands in failed even when
// the pipeline could not persist the failure itself.
func (d *Dispatcher) forceTimeout(id string) {
	ctx := context.Background()
	task, err := d.store.GetByID(ctx, id)
	if err != nil {
		d.logger.Error("timed-out task not found", logging.String(logging.FieldTaskID, id), logging.Error(err))
		return
	}
	if task.Status.IsTerminal() {
		return
	}
	if _, err := d.store.UpdateTask(ctx, id, func(t *queue.Task) error {
		t.SetFailed(services.KindTimeout, fmt.Sprintf("task exceeded the %s processing window", d.taskTimeout))
		return nil
	}); err != nil {
		d.logger.Error("failed to persist watchdog timeout", logging.String(logging.FieldTaskID, id), logging.Error(err))
		return
	}
	d.logger.Error("task timed out",
		logging.String(logging.FieldTaskID, id),
		logging.String(logging.FieldEventType, "task_timeout"),
	)
}
