package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/folder"
	"scribe/internal/testsupport"
)

type fakeLister struct {
	mu    sync.Mutex
	files []folder.RemoteFile
	err   error
	calls int
}

func (l *fakeLister) List(ctx context.Context, folderID string) ([]folder.RemoteFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	out := make([]folder.RemoteFile, len(l.files))
	copy(out, l.files)
	return out, nil
}

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []queue.Source
	failWith  error
	tasks     map[string]*queue.Task
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{tasks: make(map[string]*queue.Task)}
}

func (s *fakeSubmitter) Submit(ctx context.Context, source queue.Source, estimatedTime string) (*queue.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.submitted = append(s.submitted, source)
	task := &queue.Task{
		ID:     fmt.Sprintf("task-%d", len(s.submitted)),
		Status: queue.StatusQueued,
		Source: source,
	}
	s.tasks[task.ID] = task
	return task, nil
}

func (s *fakeSubmitter) GetByID(ctx context.Context, id string) (*queue.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "store", "get", "task not found", nil)
	}
	copied := *task
	return &copied, nil
}

func (s *fakeSubmitter) setStatus(id string, status queue.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id].Status = status
}

func (s *fakeSubmitter) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted)
}

func newTestMonitor(t *testing.T, lister folder.Lister, submitter *fakeSubmitter) *Monitor {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithFolderID("folder-1"))

	m, err := New(cfg, lister, submitter, submitter, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestPollSubmitsOnlyAllowedNewFiles(t *testing.T) {
	lister := &fakeLister{files: []folder.RemoteFile{
		{ID: "f1", Name: "lecture.mp4"},
		{ID: "f2", Name: "notes.txt"},
	}}
	submitter := newFakeSubmitter()
	m := newTestMonitor(t, lister, submitter)

	if err := m.CheckNow(context.Background()); err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if got := submitter.submitCount(); got != 1 {
		t.Fatalf("expected 1 submission, got %d", got)
	}
	if src := submitter.submitted[0]; src.DriveID != "f1" || src.Filename != "lecture.mp4" {
		t.Fatalf("unexpected source %+v", src)
	}

	// The same listing on the next tick must not resubmit the in-flight file.
	if err := m.CheckNow(context.Background()); err != nil {
		t.Fatalf("second CheckNow: %v", err)
	}
	if got := submitter.submitCount(); got != 1 {
		t.Fatalf("file resubmitted while still in flight, %d submissions", got)
	}
}

func TestPollSkipsOversizeFiles(t *testing.T) {
	lister := &fakeLister{files: []folder.RemoteFile{
		{ID: "f1", Name: "huge.mp4", SizeBytes: 3 << 20},
		{ID: "f2", Name: "small.mp4", SizeBytes: 1 << 19},
	}}
	submitter := newFakeSubmitter()
	cfg := testsupport.NewConfig(t, testsupport.WithFolderID("folder-1"))
	cfg.Workflow.MaxFileSizeMB = 1

	m, err := New(cfg, lister, submitter, submitter, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := m.CheckNow(context.Background()); err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if got := submitter.submitCount(); got != 1 {
		t.Fatalf("expected 1 submission, got %d", got)
	}
	if src := submitter.submitted[0]; src.DriveID != "f2" {
		t.Fatalf("unexpected source %+v", src)
	}
}

func TestPollRetriesAfterListFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("drive unavailable")}
	submitter := newFakeSubmitter()
	m := newTestMonitor(t, lister, submitter)

	if err := m.CheckNow(context.Background()); err == nil {
		t.Fatal("expected listing error")
	}
	if status := m.Status(); status.LastError == "" {
		t.Fatal("expected last error to be recorded")
	}

	lister.mu.Lock()
	lister.err = nil
	lister.files = []folder.RemoteFile{{ID: "f1", Name: "lecture.mp4"}}
	lister.mu.Unlock()

	if err := m.CheckNow(context.Background()); err != nil {
		t.Fatalf("CheckNow after recovery: %v", err)
	}
	if got := submitter.submitCount(); got != 1 {
		t.Fatalf("expected submission after recovery, got %d", got)
	}
	if status := m.Status(); status.LastError != "" {
		t.Fatalf("last error not cleared: %q", status.LastError)
	}
}

func TestPollCapacityLeavesFileUnmarked(t *testing.T) {
	lister := &fakeLister{files: []folder.RemoteFile{{ID: "f1", Name: "lecture.mp4"}}}
	submitter := newFakeSubmitter()
	submitter.failWith = services.Wrap(services.ErrCapacity, "dispatcher", "submit", "queue is full", nil)
	m := newTestMonitor(t, lister, submitter)

	if err := m.CheckNow(context.Background()); err != nil {
		t.Fatalf("CheckNow with full queue: %v", err)
	}
	if got := submitter.submitCount(); got != 0 {
		t.Fatalf("expected no recorded submission, got %d", got)
	}

	submitter.mu.Lock()
	submitter.failWith = nil
	submitter.mu.Unlock()

	if err := m.CheckNow(context.Background()); err != nil {
		t.Fatalf("CheckNow after capacity freed: %v", err)
	}
	if got := submitter.submitCount(); got != 1 {
		t.Fatalf("expected deferred file to be submitted, got %d", got)
	}
}

func TestReconcileFinalizesTerminalTasks(t *testing.T) {
	lister := &fakeLister{files: []folder.RemoteFile{{ID: "f1", Name: "lecture.mp4"}}}
	submitter := newFakeSubmitter()
	m := newTestMonitor(t, lister, submitter)

	if err := m.CheckNow(context.Background()); err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	status := m.Status()
	if status.PendingCount != 1 || status.ProcessedCount != 0 {
		t.Fatalf("expected 1 pending entry, got %+v", status)
	}

	submitter.setStatus("task-1", queue.StatusSucceeded)

	if err := m.CheckNow(context.Background()); err != nil {
		t.Fatalf("CheckNow after completion: %v", err)
	}
	status = m.Status()
	if status.PendingCount != 0 || status.ProcessedCount != 1 {
		t.Fatalf("expected entry finalized, got %+v", status)
	}
	if got := submitter.submitCount(); got != 1 {
		t.Fatalf("finished file resubmitted, %d submissions", got)
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	lister := &fakeLister{files: []folder.RemoteFile{{ID: "f1", Name: "lecture.mp4"}}}
	submitter := newFakeSubmitter()
	cfg := testsupport.NewConfig(t, testsupport.WithFolderID("folder-1"))

	m, err := New(cfg, lister, submitter, submitter, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.CheckNow(context.Background()); err != nil {
		t.Fatalf("CheckNow: %v", err)
	}

	reloaded, err := New(cfg, lister, submitter, submitter, nil)
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	if err := reloaded.CheckNow(context.Background()); err != nil {
		t.Fatalf("CheckNow after restart: %v", err)
	}
	if got := submitter.submitCount(); got != 1 {
		t.Fatalf("restart resubmitted known file, %d submissions", got)
	}
}

func TestStartRequiresFolderID(t *testing.T) {
	lister := &fakeLister{}
	submitter := newFakeSubmitter()
	cfg := testsupport.NewConfig(t)

	m, err := New(cfg, lister, submitter, submitter, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStartStop(t *testing.T) {
	lister := &fakeLister{files: []folder.RemoteFile{{ID: "f1", Name: "lecture.mp4"}}}
	submitter := newFakeSubmitter()
	m := newTestMonitor(t, lister, submitter)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected error starting twice")
	}
	if !m.Status().Running {
		t.Fatal("expected running status")
	}

	// The loop runs its first poll immediately on start.
	deadline := time.Now().Add(5 * time.Second)
	for submitter.submitCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("startup poll never submitted the discovered file")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Stop()
	if m.Status().Running {
		t.Fatal("expected stopped status")
	}
}
