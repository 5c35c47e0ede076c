package testsupport

import (
	"context"
	"testing"

	"scribe/internal/config"
	"scribe/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask enqueues a task for tests using the provided store.
func NewTask(t testing.TB, store *queue.Store, source queue.Source) *queue.Task {
	t.Helper()

	task, err := store.Create(context.Background(), source, "")
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return task
}
