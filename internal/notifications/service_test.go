package notifications_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scribe/internal/config"
	"scribe/internal/notifications"
	"scribe/internal/services"
)

func TestNewServiceReturnsNoopWhenUnconfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.MailURL = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyTranscriptReady(context.Background(), "Lecture", "/tmp/out.txt", "hello"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("expected noop test notification to return nil, got %v", err)
	}
}

func TestMailServiceFormatsMessages(t *testing.T) {
	var captured struct {
		auth string
		to   string
		subj string
		body string
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		captured.auth = r.Header.Get("Authorization")
		var msg struct {
			To      string `json:"to"`
			Subject string `json:"subject"`
			Body    string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		captured.to = msg.To
		captured.subj = msg.Subject
		captured.body = msg.Body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.MailURL = server.URL
	cfg.Notifications.MailToken = "secret"
	cfg.Notifications.Recipient = "user@example.com"

	svc := notifications.NewService(&cfg)
	if err := svc.NotifyTranscriptReady(context.Background(), "Team Standup", "/var/lib/scribe/transcripts/standup.txt", "we shipped it"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if captured.auth != "Bearer secret" {
		t.Fatalf("authorization header = %q", captured.auth)
	}
	if captured.to != "user@example.com" {
		t.Fatalf("recipient = %q", captured.to)
	}
	if captured.subj != "Scribe - Transcript Ready: Team Standup" {
		t.Fatalf("subject = %q", captured.subj)
	}
	if !strings.Contains(captured.body, "we shipped it") {
		t.Fatalf("body missing transcript: %q", captured.body)
	}
	if !strings.Contains(captured.body, "/var/lib/scribe/transcripts/standup.txt") {
		t.Fatalf("body missing transcript path: %q", captured.body)
	}

	if err := svc.NotifyTaskFailed(context.Background(), "Team Standup", "AcquisitionError", "download refused"); err != nil {
		t.Fatalf("notify failure: %v", err)
	}
	if captured.subj != "Scribe - Transcription Failed: Team Standup" {
		t.Fatalf("failure subject = %q", captured.subj)
	}
	if !strings.Contains(captured.body, "AcquisitionError: download refused") {
		t.Fatalf("failure body = %q", captured.body)
	}
}

func TestMailServiceHonorsSuppression(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed notification: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.MailURL = server.URL
	cfg.Notifications.Recipient = "user@example.com"
	cfg.Notifications.Transcripts = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	if err := svc.NotifyTranscriptReady(context.Background(), "x", "", ""); err != nil {
		t.Fatalf("suppressed transcript notification errored: %v", err)
	}
	if err := svc.NotifyTaskFailed(context.Background(), "x", "TimeoutError", "slow"); err != nil {
		t.Fatalf("suppressed error notification errored: %v", err)
	}
}

func TestMailServiceReportsGatewayFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mailbox full", http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.MailURL = server.URL
	cfg.Notifications.Recipient = "user@example.com"

	svc := notifications.NewService(&cfg)
	err := svc.TestNotification(context.Background())
	if !errors.Is(err, services.ErrNotification) {
		t.Fatalf("expected notification error, got %v", err)
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status code in error, got %v", err)
	}
}
