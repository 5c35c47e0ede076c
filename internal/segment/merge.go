package segment

import (
	"fmt"
	"sort"
	"strings"

	"scribe/internal/queue"
	"scribe/internal/services"
)

// ChunkResult pairs a chunk with the transcription produced for it. Segment
// timestamps inside Result are chunk-local; Merge shifts them by the chunk's
// start offset.
type ChunkResult struct {
	Chunk  Chunk
	Result queue.Result
}

// maxBoundaryWords bounds the window compared when de-duplicating text at a
// chunk boundary. Overlaps are a few seconds of speech, far below this.
const maxBoundaryWords = 50

// Merge combines per-chunk transcriptions into one result. Chunks are ordered
// by start offset, chunk-local timestamps are shifted to absolute offsets, and
// text repeated across an overlap boundary is kept once: the longest common
// run between the tail words of one chunk and the head words of the next is
// trimmed from the later chunk.
func Merge(results []ChunkResult) (*queue.Result, error) {
	if len(results) == 0 {
		return nil, services.Wrap(services.ErrMerge, "segment", "merge chunks",
			"no chunk results to merge", nil)
	}

	ordered := make([]ChunkResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Chunk.Start < ordered[j].Chunk.Start
	})

	var merged []queue.Segment
	for _, cr := range ordered {
		shifted, err := shiftSegments(cr)
		if err != nil {
			return nil, err
		}
		if len(merged) > 0 {
			shifted = trimBoundaryOverlap(merged, shifted)
		}
		for _, seg := range shifted {
			// Starts must be strictly increasing. A boundary segment whose
			// retained start still falls inside the merged span is clamped
			// past the tail, or dropped when the tail already covers it.
			if len(merged) > 0 {
				prev := merged[len(merged)-1]
				if seg.Start <= prev.Start {
					if seg.End <= prev.End {
						continue
					}
					seg.Start = prev.End
					if seg.Start <= prev.Start {
						continue
					}
					if seg.End < seg.Start {
						seg.End = seg.Start
					}
				}
			}
			merged = append(merged, seg)
		}
	}

	texts := make([]string, 0, len(merged))
	for _, seg := range merged {
		if seg.Text != "" {
			texts = append(texts, seg.Text)
		}
	}
	return &queue.Result{
		Transcript: strings.Join(texts, " "),
		Segments:   merged,
	}, nil
}

func shiftSegments(cr ChunkResult) ([]queue.Segment, error) {
	shifted := make([]queue.Segment, 0, len(cr.Result.Segments))
	prevStart := -1.0
	for _, seg := range cr.Result.Segments {
		if seg.Start < prevStart {
			return nil, services.Wrap(services.ErrMerge, "segment", "merge chunks",
				fmt.Sprintf("chunk %d segments out of order at %.2fs", cr.Chunk.Index, seg.Start), nil)
		}
		prevStart = seg.Start
		shifted = append(shifted, queue.Segment{
			Start:   seg.Start + cr.Chunk.Start,
			End:     seg.End + cr.Chunk.Start,
			Text:    normalizeWhitespace(seg.Text),
			Speaker: seg.Speaker,
		})
	}
	return shifted, nil
}

// trimBoundaryOverlap removes from the head of next the words already present
// at the tail of merged. Segments fully consumed by the trim are dropped;
// a partially consumed segment keeps its timestamps with the duplicate words
// removed.
func trimBoundaryOverlap(merged, next []queue.Segment) []queue.Segment {
	tail := tailWords(merged, maxBoundaryWords)
	head := headWords(next, maxBoundaryWords)
	common := longestCommonAffix(tail, head)
	if common == 0 {
		return next
	}

	remaining := common
	trimmed := make([]queue.Segment, 0, len(next))
	for _, seg := range next {
		if remaining == 0 {
			trimmed = append(trimmed, seg)
			continue
		}
		words := strings.Fields(seg.Text)
		if len(words) <= remaining {
			remaining -= len(words)
			continue
		}
		seg.Text = strings.Join(words[remaining:], " ")
		remaining = 0
		trimmed = append(trimmed, seg)
	}
	return trimmed
}

// longestCommonAffix returns the length of the longest word run that is both
// a suffix of tail and a prefix of head.
func longestCommonAffix(tail, head []string) int {
	max := len(tail)
	if len(head) < max {
		max = len(head)
	}
	for n := max; n > 0; n-- {
		match := true
		for i := 0; i < n; i++ {
			if !strings.EqualFold(tail[len(tail)-n+i], head[i]) {
				match = false
				break
			}
		}
		if match {
			return n
		}
	}
	return 0
}

func tailWords(segments []queue.Segment, limit int) []string {
	var words []string
	for i := len(segments) - 1; i >= 0 && len(words) < limit; i-- {
		segWords := strings.Fields(segments[i].Text)
		words = append(segWords, words...)
	}
	if len(words) > limit {
		words = words[len(words)-limit:]
	}
	return words
}

func headWords(segments []queue.Segment, limit int) []string {
	var words []string
	for _, seg := range segments {
		words = append(words, strings.Fields(seg.Text)...)
		if len(words) >= limit {
			break
		}
	}
	if len(words) > limit {
		words = words[:limit]
	}
	return words
}

func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
