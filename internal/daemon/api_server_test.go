package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"scribe/internal/api"
)

func startAPIDaemon(t *testing.T, token string) (*Daemon, string) {
	t.Helper()
	cfg := newTestConfig(t)
	cfg.Paths.APIToken = token
	d := newTestDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, "http://" + d.api.addr()
}

func TestAPISubmitRequiresToken(t *testing.T) {
	_, base := startAPIDaemon(t, "secret")

	body := bytes.NewBufferString(`{"url":"https://example.com/a.mp4"}`)
	resp, err := http.Post(base+"/transcribe", "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, base+"/transcribe", bytes.NewBufferString(`{"url":"https://example.com/a.mp4"}`))
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 with token, got %d", resp.StatusCode)
	}
	var submitted api.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if submitted.TaskID == "" || submitted.Status != "queued" {
		t.Fatalf("unexpected response %+v", submitted)
	}
	if submitted.CheckStatusURL != "/status/"+submitted.TaskID {
		t.Fatalf("check_status_url = %q, want %q", submitted.CheckStatusURL, "/status/"+submitted.TaskID)
	}
}

func TestAPIStatusUnknownTask(t *testing.T) {
	_, base := startAPIDaemon(t, "")

	resp, err := http.Get(base + "/status/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var payload api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Kind != "NotFoundError" {
		t.Fatalf("expected NotFoundError kind, got %+v", payload)
	}
}

func TestAPITasksRejectsUnknownStatus(t *testing.T) {
	_, base := startAPIDaemon(t, "")

	resp, err := http.Get(base + "/tasks?status=bogus")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAPIMonitorUnconfigured(t *testing.T) {
	_, base := startAPIDaemon(t, "")

	resp, err := http.Get(base + "/monitor/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 when monitor unconfigured, got %d", resp.StatusCode)
	}
}

func TestAPIEndToEndViaClient(t *testing.T) {
	_, base := startAPIDaemon(t, "secret")
	client := api.NewClient(base, "secret")

	submitted, err := client.Submit(context.Background(), api.SubmitRequest{URL: "https://example.com/talk.mp4", DurationSeconds: 90})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := client.Status(context.Background(), submitted.TaskID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if status.Status == "succeeded" {
			if status.Transcription != "hello" {
				t.Fatalf("unexpected transcript %q", status.Transcription)
			}
			break
		}
		if status.Status == "failed" || status.Status == "cancelled" {
			t.Fatalf("task settled as %s: %s", status.Status, status.ErrorMessage)
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never succeeded, stuck in %s", status.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	tasks, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}

	if err := client.Remove(context.Background(), submitted.TaskID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := client.Status(context.Background(), submitted.TaskID); err == nil {
		t.Fatal("expected missing task after removal")
	}
}

func TestHealthEndpointIsOpen(t *testing.T) {
	_, base := startAPIDaemon(t, "secret")

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected open health endpoint, got %d", resp.StatusCode)
	}
	var health api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status == "" || len(health.Stages) == 0 {
		t.Fatalf("unexpected health payload %+v", health)
	}
}
