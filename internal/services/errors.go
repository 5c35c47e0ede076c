package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers classify failures into the error kinds persisted on tasks
// and surfaced to API callers. Wrap tags an error with exactly one marker.
var (
	ErrValidation    = errors.New("validation error")
	ErrCapacity      = errors.New("capacity error")
	ErrAcquisition   = errors.New("acquisition error")
	ErrTranscription = errors.New("transcription error")
	ErrMerge         = errors.New("merge error")
	ErrNotification  = errors.New("notification error")
	ErrTimeout       = errors.New("timeout error")
	ErrNotFound      = errors.New("not found")
	ErrAborted       = errors.New("aborted")
)

// Error kind names as stored on tasks and returned in API error payloads.
const (
	KindValidation    = "ValidationError"
	KindCapacity      = "CapacityError"
	KindAcquisition   = "AcquisitionError"
	KindTranscription = "TranscriptionError"
	KindMerge         = "MergeError"
	KindNotification  = "NotificationError"
	KindTimeout       = "TimeoutError"
	KindNotFound      = "NotFoundError"
	KindAborted       = "Aborted"
	KindInternal      = "InternalError"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later kind classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTranscription
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf maps an error to its persisted kind name. Unclassified errors are
// reported as internal.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrCapacity):
		return KindCapacity
	case errors.Is(err, ErrAcquisition):
		return KindAcquisition
	case errors.Is(err, ErrTranscription):
		return KindTranscription
	case errors.Is(err, ErrMerge):
		return KindMerge
	case errors.Is(err, ErrNotification):
		return KindNotification
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAborted):
		return KindAborted
	default:
		return KindInternal
	}
}

// RetryableKind reports whether a failure of the given kind is eligible for
// the requeue-on-restart retry path. Only acquisition and transcription
// failures retry; everything else is final on first occurrence.
func RetryableKind(kind string) bool {
	return kind == KindAcquisition || kind == KindTranscription
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
