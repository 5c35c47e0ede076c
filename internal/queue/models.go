package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a task.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusAcquiring    Status = "acquiring"
	StatusValidating   Status = "validating"
	StatusSegmenting   Status = "segmenting"
	StatusTranscribing Status = "transcribing"
	StatusMerging      Status = "merging"
	StatusNotifying    Status = "notifying"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusAcquiring,
	StatusValidating,
	StatusSegmenting,
	StatusTranscribing,
	StatusMerging,
	StatusNotifying,
	StatusSucceeded,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// advanceEdges is the forward transition graph; failed and cancelled are
// additionally reachable from every non-terminal status.
var advanceEdges = map[Status][]Status{
	StatusQueued:       {StatusAcquiring},
	StatusAcquiring:    {StatusValidating},
	StatusValidating:   {StatusSegmenting, StatusTranscribing},
	StatusSegmenting:   {StatusTranscribing},
	StatusTranscribing: {StatusMerging},
	StatusMerging:      {StatusNotifying},
	StatusNotifying:    {StatusSucceeded},
}

var activeStatuses = map[Status]struct{}{
	StatusAcquiring:    {},
	StatusValidating:   {},
	StatusSegmenting:   {},
	StatusTranscribing: {},
	StatusMerging:      {},
	StatusNotifying:    {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status is a terminal outcome.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a status reflects an in-flight pipeline stage.
func (s Status) IsActive() bool {
	_, ok := activeStatuses[s]
	return ok
}

// TransitionAllowed reports whether moving from one status to another follows
// the task state graph. Crash recovery re-queues through its own path and is
// not covered here.
func TransitionAllowed(from, to Status) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed || to == StatusCancelled {
		return true
	}
	for _, next := range advanceEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Source describes where a task's media comes from. Exactly one of URL or
// DriveID is set; the remaining fields are optional hints from the caller.
// DurationSeconds is the declared media length used for segmentation planning
// before any audio analysis happens.
type Source struct {
	URL             string  `json:"url,omitempty"`
	DriveID         string  `json:"drive_id,omitempty"`
	Filename        string  `json:"filename,omitempty"`
	Language        string  `json:"language,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// FileInfo captures facts about the acquired media file once known.
type FileInfo struct {
	Name            string  `json:"name,omitempty"`
	SizeBytes       int64   `json:"size_bytes,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Segment is one timestamped span of transcript text.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Result holds a completed transcription.
type Result struct {
	Transcript string    `json:"transcript"`
	Segments   []Segment `json:"segments"`
}

// Task represents one unit of work persisted in SQLite.
type Task struct {
	ID                string
	Status            Status
	Progress          float64
	Source            Source
	FileInfo          FileInfo
	Result            *Result
	TranscriptPath    string
	LocalPath         string
	ErrorKind         string
	ErrorMessage      string
	NotificationError string
	RetryCount        int
	ChunkCount        int
	ChunkSeconds      float64
	EstimatedTime     string
	ProgressMessage   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// DisplayName returns the best available name for the task's media.
func (t *Task) DisplayName() string {
	if name := strings.TrimSpace(t.FileInfo.Name); name != "" {
		return name
	}
	if name := strings.TrimSpace(t.Source.Filename); name != "" {
		return name
	}
	if t.Source.DriveID != "" {
		return t.Source.DriveID
	}
	return t.Source.URL
}

// SetProgress records a progress fraction and message. Progress never moves
// backwards while the task is non-terminal; the store additionally clamps on
// persist.
func (t *Task) SetProgress(fraction float64, message string) {
	if fraction > t.Progress {
		t.Progress = fraction
	}
	t.ProgressMessage = message
}

// SetFailed marks the task failed with the given error classification.
func (t *Task) SetFailed(kind, message string) {
	now := time.Now().UTC()
	t.Status = StatusFailed
	t.ErrorKind = kind
	t.ErrorMessage = message
	t.ProgressMessage = message
	t.CompletedAt = &now
}

// SetSucceeded marks the task succeeded with its final result.
func (t *Task) SetSucceeded(result *Result) {
	now := time.Now().UTC()
	t.Status = StatusSucceeded
	t.Progress = 1.0
	t.Result = result
	t.ErrorKind = ""
	t.ErrorMessage = ""
	t.ProgressMessage = "transcription complete"
	t.CompletedAt = &now
}

// HealthSummary describes aggregated task counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Queued    int
	Active    int
	Succeeded int
	Failed    int
	Cancelled int
}
