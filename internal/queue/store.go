package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"scribe/internal/config"
	"scribe/internal/services"
)

// Store manages task persistence backed by SQLite. Every mutation goes
// through UpdateTask's read-modify-write transaction, serialized by a single
// mutex, so readers never observe a partial write and status transitions are
// checked against the state graph at the one place tasks change.
type Store struct {
	db   *sql.DB
	path string

	// mu serializes mutations; sqlite WAL readers proceed concurrently.
	mu sync.Mutex
}

// Open initializes or connects to the task database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "tasks.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the task database location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new queued task for the given source and returns it.
// Persistence completes before the call returns.
func (s *Store) Create(ctx context.Context, source Source, estimatedTime string) (*Task, error) {
	sourceJSON, err := json.Marshal(source)
	if err != nil {
		return nil, fmt.Errorf("marshal source: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (id, status, progress, source_json, estimated_time, created_at, updated_at)
         VALUES (?, ?, 0, ?, ?, ?, ?)`,
		id,
		StatusQueued,
		string(sourceJSON),
		nullableString(estimatedTime),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	return s.getByID(ctx, s.db, id)
}

// GetByID fetches a task by identifier. A missing id yields a not-found error.
func (s *Store) GetByID(ctx context.Context, id string) (*Task, error) {
	return s.getByID(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getByID(ctx context.Context, q querier, id string) (*Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get task", fmt.Sprintf("no task with id %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// List returns tasks filtered by status set (or all tasks when no status is
// provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateTask applies the mutator to the current task record and persists the
// result in one transaction. Status changes are validated against the state
// graph and progress never moves backwards while the task is non-terminal.
func (s *Store) UpdateTask(ctx context.Context, id string, mutate func(*Task) error) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	task, err := s.getByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	prevStatus := task.Status
	prevProgress := task.Progress

	if err := mutate(task); err != nil {
		return nil, err
	}
	task.ID = id

	if task.Status != prevStatus && !TransitionAllowed(prevStatus, task.Status) {
		return nil, fmt.Errorf("illegal status transition %s -> %s for task %s", prevStatus, task.Status, id)
	}
	if !prevStatus.IsTerminal() && task.Progress < prevProgress {
		task.Progress = prevProgress
	}
	if task.Status.IsTerminal() && task.CompletedAt == nil {
		now := time.Now().UTC()
		task.CompletedAt = &now
	}
	task.UpdatedAt = time.Now().UTC()

	if err := writeTask(ctx, tx, task); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return task, nil
}

// Remove deletes a task's record. Non-terminal tasks are refused so an active
// pipeline never loses its backing row.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !task.Status.IsTerminal() {
		return services.Wrap(services.ErrValidation, "store", "remove task",
			fmt.Sprintf("task %s is %s; only terminal tasks can be removed", id, task.Status), nil)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// RecoverIncomplete reclassifies every non-terminal task found at startup.
// Each gets its retry count incremented; tasks still under the retry budget
// return to queued with progress reset, the rest are failed as aborted.
// Requeued ids come back in submission order so the dispatch queue preserves
// FIFO across restarts.
func (s *Store) RecoverIncomplete(ctx context.Context, maxRetries int) (requeued []string, aborted []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin recovery tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status NOT IN (?, ?, ?) ORDER BY created_at, id`,
		StatusSucceeded, StatusFailed, StatusCancelled,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("query incomplete tasks: %w", err)
	}

	var incomplete []*Task
	for rows.Next() {
		task, scanErr := scanTask(rows)
		if scanErr != nil {
			rows.Close()
			return nil, nil, scanErr
		}
		incomplete = append(incomplete, task)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, err
	}
	rows.Close()

	now := time.Now().UTC()
	for _, task := range incomplete {
		task.RetryCount++
		if task.RetryCount <= maxRetries {
			task.Status = StatusQueued
			task.Progress = 0
			task.ProgressMessage = "requeued after restart"
			task.ErrorKind = ""
			task.ErrorMessage = ""
			task.UpdatedAt = now
			requeued = append(requeued, task.ID)
		} else {
			task.Status = StatusFailed
			task.ErrorKind = services.KindAborted
			task.ErrorMessage = fmt.Sprintf("abandoned after %d interrupted attempts", task.RetryCount)
			task.ProgressMessage = task.ErrorMessage
			task.CompletedAt = &now
			task.UpdatedAt = now
			aborted = append(aborted, task.ID)
		}
		if err := writeTask(ctx, tx, task); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit recovery: %w", err)
	}
	return requeued, aborted, nil
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates task state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusSucceeded:
			health.Succeeded += count
		case StatusFailed:
			health.Failed += count
		case StatusCancelled:
			health.Cancelled += count
		default:
			if status.IsActive() {
				health.Active += count
			}
		}
	}
	return health, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeTask(ctx context.Context, e execer, task *Task) error {
	sourceJSON, err := json.Marshal(task.Source)
	if err != nil {
		return fmt.Errorf("marshal source: %w", err)
	}
	fileInfoJSON, err := marshalNullable(task.FileInfo != FileInfo{}, task.FileInfo)
	if err != nil {
		return fmt.Errorf("marshal file info: %w", err)
	}
	resultJSON, err := marshalNullable(task.Result != nil, task.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = e.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, progress = ?, source_json = ?, file_info_json = ?, result_json = ?,
             transcript_path = ?, local_path = ?, error_kind = ?, error_message = ?,
             notification_error = ?, retry_count = ?, chunk_count = ?, chunk_seconds = ?,
             estimated_time = ?, progress_message = ?, updated_at = ?, completed_at = ?
         WHERE id = ?`,
		task.Status,
		task.Progress,
		string(sourceJSON),
		fileInfoJSON,
		resultJSON,
		nullableString(task.TranscriptPath),
		nullableString(task.LocalPath),
		nullableString(task.ErrorKind),
		nullableString(task.ErrorMessage),
		nullableString(task.NotificationError),
		task.RetryCount,
		task.ChunkCount,
		task.ChunkSeconds,
		nullableString(task.EstimatedTime),
		nullableString(task.ProgressMessage),
		task.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(task.CompletedAt),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("write task: %w", err)
	}
	return nil
}

const taskColumns = "id, status, progress, source_json, file_info_json, result_json, transcript_path, local_path, error_kind, error_message, notification_error, retry_count, chunk_count, chunk_seconds, estimated_time, progress_message, created_at, updated_at, completed_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id             string
		statusStr      string
		progress       float64
		sourceJSON     string
		fileInfoJSON   sql.NullString
		resultJSON     sql.NullString
		transcriptPath sql.NullString
		localPath      sql.NullString
		errorKind      sql.NullString
		errorMessage   sql.NullString
		notifyError    sql.NullString
		retryCount     int
		chunkCount     int
		chunkSeconds   float64
		estimatedTime  sql.NullString
		progressMsg    sql.NullString
		createdRaw     string
		updatedRaw     string
		completedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&statusStr,
		&progress,
		&sourceJSON,
		&fileInfoJSON,
		&resultJSON,
		&transcriptPath,
		&localPath,
		&errorKind,
		&errorMessage,
		&notifyError,
		&retryCount,
		&chunkCount,
		&chunkSeconds,
		&estimatedTime,
		&progressMsg,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:                id,
		Status:            Status(statusStr),
		Progress:          progress,
		TranscriptPath:    transcriptPath.String,
		LocalPath:         localPath.String,
		ErrorKind:         errorKind.String,
		ErrorMessage:      errorMessage.String,
		NotificationError: notifyError.String,
		RetryCount:        retryCount,
		ChunkCount:        chunkCount,
		ChunkSeconds:      chunkSeconds,
		EstimatedTime:     estimatedTime.String,
		ProgressMessage:   progressMsg.String,
	}

	if err := json.Unmarshal([]byte(sourceJSON), &task.Source); err != nil {
		return nil, fmt.Errorf("unmarshal source for task %s: %w", id, err)
	}
	if fileInfoJSON.Valid && fileInfoJSON.String != "" {
		if err := json.Unmarshal([]byte(fileInfoJSON.String), &task.FileInfo); err != nil {
			return nil, fmt.Errorf("unmarshal file info for task %s: %w", id, err)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result Result
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("unmarshal result for task %s: %w", id, err)
		}
		task.Result = &result
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			task.CompletedAt = &completed
		}
	}
	return task, nil
}

func marshalNullable(present bool, value any) (any, error) {
	if !present {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
