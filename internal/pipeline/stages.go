package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/segment"
	"scribe/internal/services"
	"scribe/internal/services/speech"
	"scribe/internal/stage"
)

type acquireStage struct {
	deps *Deps
}

func (s *acquireStage) Prepare(_ context.Context, _ *queue.Task) error {
	return s.deps.Config.EnsureDirectories()
}

func (s *acquireStage) Execute(ctx context.Context, task *queue.Task) error {
	got, err := s.deps.Acquirer.Fetch(ctx, task.Source, s.deps.Config.Paths.StagingDir)
	if err != nil {
		return err
	}
	task.LocalPath = got.Path
	task.FileInfo = queue.FileInfo{
		Name:            got.Name,
		SizeBytes:       got.SizeBytes,
		DurationSeconds: task.Source.DurationSeconds,
	}
	task.SetProgress(task.Progress, fmt.Sprintf("downloaded %s", got.Name))
	return nil
}

func (s *acquireStage) HealthCheck(_ context.Context) stage.Health {
	dir := s.deps.Config.Paths.StagingDir
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return stage.Unhealthy("acquire", fmt.Sprintf("staging directory %s unavailable", dir))
	}
	return stage.Healthy("acquire")
}

type validateStage struct {
	deps *Deps
}

func (s *validateStage) Prepare(_ context.Context, _ *queue.Task) error { return nil }

func (s *validateStage) Execute(_ context.Context, task *queue.Task) error {
	name := task.FileInfo.Name
	if !s.deps.Config.ExtensionAllowed(name) {
		return services.Wrap(services.ErrValidation, "validate", "check extension",
			fmt.Sprintf("file %q has a disallowed extension", name), nil)
	}
	if limit := s.deps.Config.MaxFileSizeBytes(); limit > 0 && task.FileInfo.SizeBytes > limit {
		return services.Wrap(services.ErrValidation, "validate", "check size",
			fmt.Sprintf("file %q is %d bytes, above the %d byte ceiling", name, task.FileInfo.SizeBytes, limit), nil)
	}
	if task.FileInfo.SizeBytes <= 0 {
		return services.Wrap(services.ErrValidation, "validate", "check size",
			fmt.Sprintf("file %q is empty", name), nil)
	}
	task.SetProgress(task.Progress, fmt.Sprintf("validated %s", name))
	return nil
}

func (s *validateStage) HealthCheck(_ context.Context) stage.Health {
	if len(s.deps.Config.Workflow.AllowedExtensions) == 0 {
		return stage.Unhealthy("validate", "no allowed extensions configured")
	}
	return stage.Healthy("validate")
}

type segmentStage struct {
	deps  *Deps
	state *runState
}

func (s *segmentStage) Prepare(_ context.Context, _ *queue.Task) error { return nil }

func (s *segmentStage) Execute(ctx context.Context, task *queue.Task) error {
	chunks, err := segment.Plan(
		task.FileInfo.DurationSeconds,
		float64(s.deps.Config.Workflow.SegmentationThreshold),
		float64(s.deps.Config.Workflow.ChunkOverlap),
	)
	if err != nil {
		return err
	}
	s.state.chunks = chunks
	task.ChunkCount = len(chunks)
	if len(chunks) > 0 {
		task.ChunkSeconds = chunks[0].Duration()
	}
	task.SetProgress(task.Progress, fmt.Sprintf("planned %d chunks", len(chunks)))
	logging.WithContext(ctx, s.deps.Logger).Info("source segmented",
		logging.Int("chunk_count", len(chunks)),
		logging.Float64("chunk_seconds", task.ChunkSeconds),
	)
	return nil
}

func (s *segmentStage) HealthCheck(_ context.Context) stage.Health {
	overlap := s.deps.Config.Workflow.ChunkOverlap
	threshold := s.deps.Config.Workflow.SegmentationThreshold
	if threshold > 0 && overlap*2 >= threshold {
		return stage.Unhealthy("segment", "chunk overlap does not fit the segmentation threshold")
	}
	return stage.Healthy("segment")
}

type transcribeStage struct {
	deps  *Deps
	state *runState
}

func (s *transcribeStage) Prepare(_ context.Context, task *queue.Task) error {
	// Unsegmented sources transcribe as one chunk spanning the file.
	if len(s.state.chunks) == 0 {
		duration := task.FileInfo.DurationSeconds
		s.state.chunks = []segment.Chunk{{Index: 0, Start: 0, End: duration}}
		task.ChunkCount = 1
	}
	return nil
}

func (s *transcribeStage) Execute(ctx context.Context, task *queue.Task) error {
	audioURL, err := s.deps.Speech.Upload(ctx, task.LocalPath)
	if err != nil {
		return err
	}
	s.state.audioURL = audioURL

	chunks := s.state.chunks
	total := len(chunks)
	results := make([]segment.ChunkResult, total)
	errs := make([]error, total)

	var done int
	var mu sync.Mutex
	var wg sync.WaitGroup

	// Chunk jobs run concurrently; only whole tasks count against the
	// dispatcher's concurrency limit.
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk segment.Chunk) {
			defer wg.Done()
			opts := speech.Options{
				Language:  task.Source.Language,
				ClipStart: chunk.Start,
				ClipEnd:   chunk.End,
			}
			result, err := s.deps.Speech.TranscribeURL(ctx, s.state.audioURL, opts)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = segment.ChunkResult{Chunk: chunk, Result: *result}

			mu.Lock()
			done++
			fraction := 0.3 + 0.5*float64(done)/float64(total)
			message := fmt.Sprintf("transcribed chunk %d/%d", done, total)
			mu.Unlock()

			if _, err := s.deps.Store.UpdateTask(ctx, task.ID, func(t *queue.Task) error {
				t.SetProgress(fraction, message)
				return nil
			}); err != nil {
				logging.WithContext(ctx, s.deps.Logger).Warn("chunk progress not persisted", logging.Error(err))
			}
		}(i, chunk)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	s.state.results = results
	task.SetProgress(0.8, "all chunks transcribed")
	return nil
}

func (s *transcribeStage) HealthCheck(ctx context.Context) stage.Health {
	if err := s.deps.Speech.Ping(ctx); err != nil {
		return stage.Unhealthy("transcribe", err.Error())
	}
	return stage.Healthy("transcribe")
}

type mergeStage struct {
	deps  *Deps
	state *runState
}

func (s *mergeStage) Prepare(_ context.Context, _ *queue.Task) error { return nil }

func (s *mergeStage) Execute(_ context.Context, task *queue.Task) error {
	result, err := segment.Merge(s.state.results)
	if err != nil {
		return err
	}
	task.Result = result
	task.SetProgress(task.Progress, fmt.Sprintf("merged %d chunks", len(s.state.results)))
	return nil
}

func (s *mergeStage) HealthCheck(_ context.Context) stage.Health {
	return stage.Healthy("merge")
}

type notifyStage struct {
	deps *Deps
}

func (s *notifyStage) Prepare(_ context.Context, _ *queue.Task) error { return nil }

// Execute writes the transcript to disk and sends the completion email.
// Delivery failure is recorded on the task but never fails it.
func (s *notifyStage) Execute(ctx context.Context, task *queue.Task) error {
	if task.Result == nil {
		return services.Wrap(services.ErrMerge, "notify", "write transcript",
			"no merged result available", nil)
	}

	path, err := s.writeTranscript(task)
	if err != nil {
		return err
	}
	task.TranscriptPath = path

	if err := s.deps.Notifier.NotifyTranscriptReady(ctx, task.DisplayName(), path, task.Result.Transcript); err != nil {
		task.NotificationError = err.Error()
		logging.WithContext(ctx, s.deps.Logger).Warn("transcript notification not delivered", logging.Error(err))
	}
	task.SetProgress(task.Progress, "transcript delivered")
	return nil
}

func (s *notifyStage) writeTranscript(task *queue.Task) (string, error) {
	// Keyed by task id so same-named sources never overwrite each other.
	name := strings.TrimSuffix(task.DisplayName(), filepath.Ext(task.DisplayName()))
	if name != "" && name != task.ID {
		name = name + "_" + task.ID
	} else {
		name = task.ID
	}
	path := filepath.Join(s.deps.Config.Paths.TranscriptsDir, name+".txt")
	if err := os.WriteFile(path, []byte(task.Result.Transcript+"\n"), 0o644); err != nil {
		return "", services.Wrap(services.ErrNotification, "notify", "write transcript",
			fmt.Sprintf("write %s", path), err)
	}
	return path, nil
}

func (s *notifyStage) HealthCheck(_ context.Context) stage.Health {
	dir := s.deps.Config.Paths.TranscriptsDir
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return stage.Unhealthy("notify", fmt.Sprintf("transcripts directory %s unavailable", dir))
	}
	return stage.Healthy("notify")
}
