package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSubmitSendsAuthAndBody(t *testing.T) {
	var gotAuth string
	var gotReq SubmitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transcribe" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(SubmitResponse{TaskID: "task-1", Status: "queued"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	resp, err := client.Submit(context.Background(), SubmitRequest{URL: "https://example.com/a.mp4", Language: "pt"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.TaskID != "task-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotReq.URL != "https://example.com/a.mp4" || gotReq.Language != "pt" {
		t.Fatalf("unexpected request body %+v", gotReq)
	}
}

func TestClientListFiltersByStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query()["status"]; len(got) != 2 || got[0] != "queued" || got[1] != "failed" {
			t.Errorf("unexpected status filter %v", got)
		}
		json.NewEncoder(w).Encode(TaskListResponse{Tasks: []TaskSummary{{TaskID: "a"}}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	tasks, err := client.List(context.Background(), "queued", "failed")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 1 || tasks[0].TaskID != "a" {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
}

func TestClientDecodesErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "task not found", Kind: "not_found"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.Status(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Kind != "not_found" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if apiErr.Error() != "task not found" {
		t.Fatalf("unexpected message %q", apiErr.Error())
	}
}

func TestClientRemoveNoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/tasks/task-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if err := client.Remove(context.Background(), "task-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}
