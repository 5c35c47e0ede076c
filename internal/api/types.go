package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SubmitRequest asks the daemon to transcribe one source. Exactly one of URL
// and DriveID must be set; Filename names the source when the URL does not.
type SubmitRequest struct {
	URL             string  `json:"url,omitempty"`
	DriveID         string  `json:"drive_id,omitempty"`
	Filename        string  `json:"filename,omitempty"`
	Language        string  `json:"language,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	TaskID         string `json:"task_id"`
	Status         string `json:"status"`
	EstimatedTime  string `json:"estimated_time,omitempty"`
	CheckStatusURL string `json:"check_status_url"`
}

// Segment is one timed span of the transcript.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// TaskStatus describes one task in full, including the transcript once the
// task succeeded.
type TaskStatus struct {
	TaskID        string    `json:"task_id"`
	Name          string    `json:"name"`
	Status        string    `json:"status"`
	Progress      float64   `json:"progress"`
	Message       string    `json:"message,omitempty"`
	EstimatedTime string    `json:"estimated_time,omitempty"`
	RetryCount    int       `json:"retry_count,omitempty"`
	ChunkCount    int       `json:"chunk_count,omitempty"`
	CreatedAt     string    `json:"created_at,omitempty"`
	CompletedAt   string    `json:"completed_at,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Transcription string    `json:"transcription,omitempty"`
	Segments      []Segment `json:"segments,omitempty"`
}

// TaskSummary is the condensed listing form of a task.
type TaskSummary struct {
	TaskID    string  `json:"task_id"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	Message   string  `json:"message,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// TaskListResponse wraps a collection of task summaries.
type TaskListResponse struct {
	Tasks []TaskSummary `json:"tasks"`
}

// MonitorStatus reports the folder monitor loop state.
type MonitorStatus struct {
	Running        bool   `json:"running"`
	FolderID       string `json:"folder_id,omitempty"`
	IntervalSecs   int    `json:"interval_seconds"`
	LastCheck      string `json:"last_check,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	ProcessedCount int    `json:"processed_count"`
	PendingCount   int    `json:"pending_count"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse aggregates daemon diagnostics.
type HealthResponse struct {
	Status   string         `json:"status"`
	Queue    map[string]int `json:"queue"`
	Active   []string       `json:"active,omitempty"`
	Queued   []string       `json:"queued,omitempty"`
	Capacity int            `json:"capacity"`
	Stages   []StageHealth  `json:"stages"`
}

// ErrorResponse carries a failure back to API consumers.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
