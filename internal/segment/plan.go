package segment

import (
	"fmt"
	"math"

	"scribe/internal/services"
)

// Chunk is one time-bounded slice of a source to transcribe independently.
// Consecutive chunks overlap so words at a cut point survive in at least one
// chunk.
type Chunk struct {
	Index   int
	Start   float64
	End     float64
	Overlap float64
}

// Duration returns the chunk's span in seconds.
func (c Chunk) Duration() float64 {
	return c.End - c.Start
}

// Plan splits a source of the given duration into chunks no longer than
// maxChunk seconds, with overlap seconds of shared audio at each internal
// boundary. A duration at or under the threshold yields a single chunk
// covering the whole source.
func Plan(duration, maxChunk, overlap float64) ([]Chunk, error) {
	if duration <= 0 {
		return nil, services.Wrap(services.ErrValidation, "segment", "plan chunks",
			fmt.Sprintf("source duration %.2fs is not positive", duration), nil)
	}
	if maxChunk <= 0 {
		return nil, services.Wrap(services.ErrValidation, "segment", "plan chunks",
			fmt.Sprintf("chunk ceiling %.2fs is not positive", maxChunk), nil)
	}
	if overlap < 0 || overlap*2 >= maxChunk {
		return nil, services.Wrap(services.ErrValidation, "segment", "plan chunks",
			fmt.Sprintf("overlap %.2fs does not fit chunk ceiling %.2fs", overlap, maxChunk), nil)
	}

	if duration <= maxChunk {
		return []Chunk{{Index: 0, Start: 0, End: duration}}, nil
	}

	// Each chunk after the first re-covers `overlap` seconds of its
	// predecessor, so the effective stride is maxChunk-overlap.
	stride := maxChunk - overlap
	count := int(math.Ceil((duration - overlap) / stride))
	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * stride
		end := start + maxChunk
		if end > duration {
			end = duration
		}
		chunk := Chunk{Index: i, Start: start, End: end}
		if i > 0 {
			chunk.Overlap = overlap
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
