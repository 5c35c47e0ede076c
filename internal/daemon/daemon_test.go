package daemon

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scribe/internal/api"
	"scribe/internal/config"
	"scribe/internal/notifications"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/acquire"
	"scribe/internal/services/speech"
	"scribe/internal/testsupport"
	"scribe/internal/workflow"
)

type stubAcquirer struct{}

func (stubAcquirer) Fetch(_ context.Context, source queue.Source, destDir string) (*acquire.Acquired, error) {
	name := source.Filename
	if name == "" {
		name = "media.mp4"
	}
	path := filepath.Join(destDir, name)
	if err := os.WriteFile(path, []byte("staged media"), 0o644); err != nil {
		return nil, err
	}
	return &acquire.Acquired{Path: path, Name: name, SizeBytes: int64(len("staged media"))}, nil
}

type stubSpeech struct{}

func (stubSpeech) Upload(context.Context, string) (string, error) { return "https://upload/u", nil }

func (stubSpeech) TranscribeURL(context.Context, string, speech.Options) (*queue.Result, error) {
	return &queue.Result{
		Transcript: "hello",
		Segments:   []queue.Segment{{Start: 0, End: 1, Text: "hello"}},
	}, nil
}

func (s stubSpeech) Transcribe(ctx context.Context, _ string, opts speech.Options) (*queue.Result, error) {
	return s.TranscribeURL(ctx, "", opts)
}

func (stubSpeech) Ping(context.Context) error { return nil }

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t)
}

func newTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)

	pipe := pipeline.New(pipeline.Deps{
		Config:   cfg,
		Store:    store,
		Acquirer: stubAcquirer{},
		Speech:   stubSpeech{},
		Notifier: notifications.NewService(cfg),
	})
	dispatcher := workflow.NewDispatcher(cfg, store, pipe, nil)

	d, err := New(cfg, store, dispatcher, pipe, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func waitForStatus(t *testing.T, d *Daemon, taskID string, want queue.Status) *queue.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		task, err := d.GetTask(context.Background(), taskID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if task.Status == want {
			return task
		}
		if task.Status.IsTerminal() {
			t.Fatalf("task settled as %s (%s), want %s", task.Status, task.ErrorMessage, want)
		}
		if time.Now().After(deadline) {
			t.Fatalf("task stuck in %s, want %s", task.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDaemonRunsSubmittedTask(t *testing.T) {
	cfg := newTestConfig(t)
	d := newTestDaemon(t, cfg)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	task, err := d.Submit(context.Background(), api.SubmitRequest{URL: "https://example.com/talk.mp4"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if task.EstimatedTime == "" {
		t.Fatal("expected estimated time on submission")
	}

	done := waitForStatus(t, d, task.ID, queue.StatusSucceeded)
	if done.Result == nil || done.Result.Transcript != "hello" {
		t.Fatalf("unexpected result %+v", done.Result)
	}
}

func TestDaemonSubmitValidation(t *testing.T) {
	cfg := newTestConfig(t)
	d := newTestDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	if _, err := d.Submit(context.Background(), api.SubmitRequest{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty request, got %v", err)
	}
	req := api.SubmitRequest{URL: "https://example.com/a.mp4", DriveID: "abc"}
	if _, err := d.Submit(context.Background(), req); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for ambiguous source, got %v", err)
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := newTestConfig(t)
	first := newTestDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	second := newTestDaemon(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}
}

func TestDaemonHealthReportsStages(t *testing.T) {
	cfg := newTestConfig(t)
	d := newTestDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	health, err := d.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if len(health.Stages) != 6 {
		t.Fatalf("expected 6 stage reports, got %d", len(health.Stages))
	}
	if health.Capacity == 0 {
		t.Fatal("expected non-zero capacity")
	}
}

func TestEstimateTime(t *testing.T) {
	if got := estimateTime(0); got != "2-5 minutes" {
		t.Fatalf("default estimate = %q", got)
	}
	if got := estimateTime(600); got != "3-7 minutes" {
		t.Fatalf("ten minute estimate = %q", got)
	}
}

func TestAPIServerDisabledWithoutBind(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Paths.APIBind = ""
	d := newTestDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()
	if d.api != nil {
		t.Fatal("expected no api server without bind address")
	}
}

func TestAPIServerListensWhenBound(t *testing.T) {
	cfg := newTestConfig(t)
	d := newTestDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	addr := d.api.addr()
	if addr == "" {
		t.Fatal("expected listening address")
	}
	resp, err := http.Get("http://" + addr + "/ping")
	if err != nil {
		t.Fatalf("ping daemon: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ping status = %d", resp.StatusCode)
	}
}
