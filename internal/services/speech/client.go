package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/queue"
	"scribe/internal/services"
)

const userAgent = "Scribe/0.1.0"

// Options tunes a single transcription request.
type Options struct {
	// Language is an ISO 639-1 code; empty lets the provider detect it.
	Language string
	// ClipStart and ClipEnd bound the transcribed span in seconds. A zero
	// ClipEnd means the rest of the media. Returned segment timestamps are
	// relative to ClipStart.
	ClipStart float64
	ClipEnd   float64
}

// Client turns media into text with timestamped segments. Upload pushes the
// bytes once; TranscribeURL can then run any number of clip-bounded jobs
// against the same upload.
type Client interface {
	Upload(ctx context.Context, filePath string) (string, error)
	TranscribeURL(ctx context.Context, audioURL string, opts Options) (*queue.Result, error)
	Transcribe(ctx context.Context, filePath string, opts Options) (*queue.Result, error)
	Ping(ctx context.Context) error
}

type httpClient struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	client       *http.Client
}

// NewClient builds the default provider client. The provider speaks an
// upload-then-poll protocol: media bytes go up first, then a transcript job
// referencing the upload is created and polled until it settles.
func NewClient(cfg *config.Config) Client {
	timeout := time.Duration(cfg.Speech.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	poll := time.Duration(cfg.Speech.PollInterval) * time.Second
	if poll <= 0 {
		poll = 3 * time.Second
	}
	return &httpClient{
		baseURL:      strings.TrimRight(cfg.Speech.BaseURL, "/"),
		apiKey:       cfg.Speech.APIKey,
		pollInterval: poll,
		client:       &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL       string `json:"audio_url"`
	LanguageCode   string `json:"language_code,omitempty"`
	SpeakerLabels  bool   `json:"speaker_labels"`
	Punctuate      bool   `json:"punctuate"`
	FormatText     bool   `json:"format_text"`
	AudioStartFrom int64  `json:"audio_start_from,omitempty"`
	AudioEndAt     int64  `json:"audio_end_at,omitempty"`
}

type utterance struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
}

type transcriptResponse struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Text       string      `json:"text"`
	Utterances []utterance `json:"utterances"`
	Error      string      `json:"error"`
}

func (c *httpClient) Transcribe(ctx context.Context, filePath string, opts Options) (*queue.Result, error) {
	audioURL, err := c.Upload(ctx, filePath)
	if err != nil {
		return nil, err
	}
	return c.TranscribeURL(ctx, audioURL, opts)
}

func (c *httpClient) TranscribeURL(ctx context.Context, audioURL string, opts Options) (*queue.Result, error) {
	jobID, err := c.createJob(ctx, audioURL, opts)
	if err != nil {
		return nil, err
	}
	result, err := c.pollJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	// Provider timestamps are absolute within the upload; callers expect
	// clip-relative offsets.
	if opts.ClipStart > 0 {
		for i := range result.Segments {
			result.Segments[i].Start -= opts.ClipStart
			result.Segments[i].End -= opts.ClipStart
			if result.Segments[i].Start < 0 {
				result.Segments[i].Start = 0
			}
			if result.Segments[i].End < 0 {
				result.Segments[i].End = 0
			}
		}
	}
	return result, nil
}

// Ping verifies the provider endpoint is reachable and credentials are
// accepted. Used for stage health checks.
func (c *httpClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transcript?limit=1", nil)
	if err != nil {
		return services.Wrap(services.ErrTranscription, "speech", "ping", "", err)
	}
	c.setHeaders(req, "")
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTranscription, "speech", "ping", "", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return services.Wrap(services.ErrTranscription, "speech", "ping",
			fmt.Sprintf("provider rejected credentials with %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *httpClient) Upload(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, "speech", "upload media",
			fmt.Sprintf("open %s", filePath), err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", file)
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, "speech", "upload media", "", err)
	}
	c.setHeaders(req, "application/octet-stream")

	var parsed uploadResponse
	if err := c.do(req, &parsed); err != nil {
		return "", services.Wrap(services.ErrTranscription, "speech", "upload media", "", err)
	}
	if parsed.UploadURL == "" {
		return "", services.Wrap(services.ErrTranscription, "speech", "upload media",
			"provider returned no upload url", nil)
	}
	return parsed.UploadURL, nil
}

func (c *httpClient) createJob(ctx context.Context, audioURL string, opts Options) (string, error) {
	payload, err := json.Marshal(transcriptRequest{
		AudioURL:       audioURL,
		LanguageCode:   strings.TrimSpace(opts.Language),
		SpeakerLabels:  true,
		Punctuate:      true,
		FormatText:     true,
		AudioStartFrom: int64(opts.ClipStart * 1000),
		AudioEndAt:     int64(opts.ClipEnd * 1000),
	})
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, "speech", "create job", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, "speech", "create job", "", err)
	}
	c.setHeaders(req, "application/json")

	var parsed transcriptResponse
	if err := c.do(req, &parsed); err != nil {
		return "", services.Wrap(services.ErrTranscription, "speech", "create job", "", err)
	}
	if parsed.ID == "" {
		return "", services.Wrap(services.ErrTranscription, "speech", "create job",
			"provider returned no job id", nil)
	}
	return parsed.ID, nil
}

func (c *httpClient) pollJob(ctx context.Context, jobID string) (*queue.Result, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transcript/"+jobID, nil)
		if err != nil {
			return nil, services.Wrap(services.ErrTranscription, "speech", "poll job", "", err)
		}
		c.setHeaders(req, "")

		var parsed transcriptResponse
		if err := c.do(req, &parsed); err != nil {
			return nil, services.Wrap(services.ErrTranscription, "speech", "poll job",
				fmt.Sprintf("job %s", jobID), err)
		}

		switch parsed.Status {
		case "completed":
			return buildResult(parsed), nil
		case "error":
			detail := strings.TrimSpace(parsed.Error)
			if detail == "" {
				detail = "provider reported failure without detail"
			}
			return nil, services.Wrap(services.ErrTranscription, "speech", "poll job",
				fmt.Sprintf("job %s: %s", jobID, detail), nil)
		}

		select {
		case <-ctx.Done():
			return nil, services.Wrap(services.ErrTranscription, "speech", "poll job",
				fmt.Sprintf("job %s abandoned", jobID), ctx.Err())
		case <-ticker.C:
		}
	}
}

// buildResult converts provider utterances (millisecond timestamps) into
// segments with second offsets.
func buildResult(resp transcriptResponse) *queue.Result {
	segments := make([]queue.Segment, 0, len(resp.Utterances))
	for _, u := range resp.Utterances {
		segments = append(segments, queue.Segment{
			Start:   u.Start / 1000,
			End:     u.End / 1000,
			Text:    strings.TrimSpace(u.Text),
			Speaker: u.Speaker,
		})
	}
	return &queue.Result{
		Transcript: strings.TrimSpace(resp.Text),
		Segments:   segments,
	}
}

func (c *httpClient) setHeaders(req *http.Request, contentType string) {
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
