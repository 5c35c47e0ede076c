package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/services"
)

const userAgent = "Scribe/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyTranscriptReady(ctx context.Context, title, transcriptPath, transcript string) error
	NotifyTaskFailed(ctx context.Context, title, kind, message string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by the mail gateway when
// configured. When no gateway URL or recipient is configured, a noop
// implementation is returned.
func NewService(cfg *config.Config) Service {
	endpoint := strings.TrimSpace(cfg.Notifications.MailURL)
	recipient := strings.TrimSpace(cfg.Notifications.Recipient)
	if endpoint == "" || recipient == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &mailService{
		endpoint:        endpoint,
		token:           strings.TrimSpace(cfg.Notifications.MailToken),
		recipient:       recipient,
		sendTranscripts: cfg.Notifications.Transcripts,
		sendErrors:      cfg.Notifications.Errors,
		client:          &http.Client{Timeout: timeout},
	}
}

type message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type mailService struct {
	endpoint        string
	token           string
	recipient       string
	sendTranscripts bool
	sendErrors      bool
	client          *http.Client
}

func (m *mailService) NotifyTranscriptReady(ctx context.Context, title, transcriptPath, transcript string) error {
	if !m.sendTranscripts {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "your recording"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Transcription complete: %s\n", title)
	if transcriptPath = strings.TrimSpace(transcriptPath); transcriptPath != "" {
		fmt.Fprintf(&body, "Saved to: %s\n", transcriptPath)
	}
	if transcript = strings.TrimSpace(transcript); transcript != "" {
		body.WriteString("\n")
		body.WriteString(transcript)
		body.WriteString("\n")
	}

	return m.send(ctx, message{
		To:      m.recipient,
		Subject: fmt.Sprintf("Scribe - Transcript Ready: %s", title),
		Body:    body.String(),
	})
}

func (m *mailService) NotifyTaskFailed(ctx context.Context, title, kind, errMessage string) error {
	if !m.sendErrors {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "unknown source"
	}
	if kind = strings.TrimSpace(kind); kind == "" {
		kind = "error"
	}

	return m.send(ctx, message{
		To:      m.recipient,
		Subject: fmt.Sprintf("Scribe - Transcription Failed: %s", title),
		Body:    fmt.Sprintf("Transcription of %s failed.\n\n%s: %s\n", title, kind, strings.TrimSpace(errMessage)),
	})
}

func (m *mailService) TestNotification(ctx context.Context) error {
	return m.send(ctx, message{
		To:      m.recipient,
		Subject: "Scribe - Test",
		Body:    "Notification system test\n",
	})
}

func (m *mailService) send(ctx context.Context, msg message) error {
	if m == nil || m.client == nil {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return services.Wrap(services.ErrNotification, "notify", "encode message", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrNotification, "notify", "build request", "", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrNotification, "notify", "send message", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrNotification, "notify", "send message",
			fmt.Sprintf("mail gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyTranscriptReady(context.Context, string, string, string) error { return nil }
func (noopService) NotifyTaskFailed(context.Context, string, string, string) error      { return nil }
func (noopService) TestNotification(context.Context) error                              { return nil }
