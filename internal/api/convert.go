package api

import (
	"slices"
	"strings"
	"time"

	"scribe/internal/queue"
	"scribe/internal/stage"
)

// FromTask converts a task record into its full API representation.
func FromTask(task *queue.Task) TaskStatus {
	if task == nil {
		return TaskStatus{}
	}

	dto := TaskStatus{
		TaskID:        task.ID,
		Name:          task.DisplayName(),
		Status:        string(task.Status),
		Progress:      task.Progress,
		Message:       task.ProgressMessage,
		EstimatedTime: task.EstimatedTime,
		RetryCount:    task.RetryCount,
		ChunkCount:    task.ChunkCount,
		ErrorKind:     task.ErrorKind,
		ErrorMessage:  task.ErrorMessage,
		CreatedAt:     FormatTime(task.CreatedAt),
	}
	if task.CompletedAt != nil {
		dto.CompletedAt = FormatTime(*task.CompletedAt)
	}
	if task.Result != nil {
		dto.Transcription = task.Result.Transcript
		dto.Segments = FromSegments(task.Result.Segments)
	}
	return dto
}

// FromTaskSummary converts a task record into its listing form.
func FromTaskSummary(task *queue.Task) TaskSummary {
	if task == nil {
		return TaskSummary{}
	}
	return TaskSummary{
		TaskID:    task.ID,
		Name:      task.DisplayName(),
		Status:    string(task.Status),
		Progress:  task.Progress,
		Message:   task.ProgressMessage,
		CreatedAt: FormatTime(task.CreatedAt),
	}
}

// FromTasks converts a slice of task records into listing DTOs.
func FromTasks(tasks []*queue.Task) []TaskSummary {
	if len(tasks) == 0 {
		return nil
	}
	out := make([]TaskSummary, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FromTaskSummary(task))
	}
	return out
}

// FromSegments converts transcript segments into their wire form.
func FromSegments(segments []queue.Segment) []Segment {
	if len(segments) == 0 {
		return nil
	}
	out := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, Segment{
			Start:   seg.Start,
			End:     seg.End,
			Text:    seg.Text,
			Speaker: seg.Speaker,
		})
	}
	return out
}

// FromStageHealth converts stage readiness reports into their wire form,
// sorted by stage name.
func FromStageHealth(health []stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	slices.SortFunc(out, func(a, b StageHealth) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
