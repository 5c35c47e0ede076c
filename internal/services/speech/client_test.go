package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"scribe/internal/config"
	"scribe/internal/services"
)

func writeMedia(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("fake media"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	return path
}

func newTestClient(t *testing.T, baseURL string) Client {
	t.Helper()
	cfg := config.Default()
	cfg.Speech.BaseURL = baseURL
	cfg.Speech.APIKey = "key-123"
	cfg.Speech.Timeout = 5
	cfg.Speech.PollInterval = 1
	c := NewClient(&cfg)
	// Tests should not wait out the real poll cadence.
	c.(*httpClient).pollInterval = time.Millisecond
	return c
}

func TestTranscribeUploadPollComplete(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	var serverURL string

	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "key-123" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": serverURL + "/cdn/clip"})
	})
	mux.HandleFunc("POST /transcript", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AudioURL      string `json:"audio_url"`
			LanguageCode  string `json:"language_code"`
			SpeakerLabels bool   `json:"speaker_labels"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode job request: %v", err)
		}
		if req.AudioURL != serverURL+"/cdn/clip" {
			t.Errorf("audio_url = %q", req.AudioURL)
		}
		if req.LanguageCode != "pt" {
			t.Errorf("language_code = %q", req.LanguageCode)
		}
		if !req.SpeakerLabels {
			t.Error("expected speaker labels on")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "queued"})
	})
	mux.HandleFunc("GET /transcript/job-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "processing"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "job-1",
			"status": "completed",
			"text":   "ola mundo",
			"utterances": []map[string]any{
				{"start": 0, "end": 1500, "text": "ola", "speaker": "A"},
				{"start": 1500, "end": 3000, "text": "mundo", "speaker": "B"},
			},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()
	serverURL = server.URL

	client := newTestClient(t, server.URL)
	result, err := client.Transcribe(context.Background(), writeMedia(t), Options{Language: "pt"})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.Transcript != "ola mundo" {
		t.Fatalf("transcript = %q", result.Transcript)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("segments = %d", len(result.Segments))
	}
	if result.Segments[0].End != 1.5 || result.Segments[1].Start != 1.5 {
		t.Fatalf("timestamps not converted to seconds: %+v", result.Segments)
	}
	if result.Segments[1].Speaker != "B" {
		t.Fatalf("speaker = %q", result.Segments[1].Speaker)
	}
	if got := polls.Load(); got < 3 {
		t.Fatalf("polls = %d, want at least 3", got)
	}
}

func TestTranscribeURLClipOffsets(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /transcript", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AudioStartFrom int64 `json:"audio_start_from"`
			AudioEndAt     int64 `json:"audio_end_at"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode job request: %v", err)
		}
		if req.AudioStartFrom != 595000 || req.AudioEndAt != 900000 {
			t.Errorf("clip bounds = [%d, %d]", req.AudioStartFrom, req.AudioEndAt)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-5", "status": "queued"})
	})
	mux.HandleFunc("GET /transcript/job-5", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "job-5",
			"status": "completed",
			"text":   "second half",
			"utterances": []map[string]any{
				{"start": 600000, "end": 605000, "text": "second half", "speaker": "A"},
			},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.TranscribeURL(context.Background(), "https://cdn.example.com/u", Options{ClipStart: 595, ClipEnd: 900})
	if err != nil {
		t.Fatalf("transcribe url: %v", err)
	}
	if result.Segments[0].Start != 5 || result.Segments[0].End != 10 {
		t.Fatalf("clip-relative span = [%v, %v], want [5, 10]", result.Segments[0].Start, result.Segments[0].End)
	}
}

func TestTranscribeJobError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example.com/x"})
	})
	mux.HandleFunc("POST /transcript", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-2", "status": "queued"})
	})
	mux.HandleFunc("GET /transcript/job-2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-2", "status": "error", "error": "audio unreadable"})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Transcribe(context.Background(), writeMedia(t), Options{})
	if !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("expected transcription error, got %v", err)
	}
	if !strings.Contains(err.Error(), "audio unreadable") {
		t.Fatalf("error missing provider detail: %v", err)
	}
}

func TestTranscribeUploadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Transcribe(context.Background(), writeMedia(t), Options{})
	if !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("expected transcription error, got %v", err)
	}
}

func TestTranscribeCancelledDuringPoll(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.example.com/x"})
	})
	mux.HandleFunc("POST /transcript", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-3", "status": "queued"})
	})
	mux.HandleFunc("GET /transcript/job-3", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-3", "status": "processing"})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := newTestClient(t, server.URL)
	media := writeMedia(t)

	done := make(chan error, 1)
	go func() {
		_, err := client.Transcribe(ctx, media, Options{})
		done <- err
	}()
	cancel()

	err := <-done
	if !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("expected transcription error after cancel, got %v", err)
	}
}
