// Package chunker splits document text into overlapping chunks sized for
// embedding. Splits prefer sentence boundaries so retrieval hits read as
// coherent passages rather than mid-sentence fragments.
package chunker

import "strings"

const (
	// DefaultChunkSize is the window size in characters.
	DefaultChunkSize = 512
	// DefaultOverlap is how many characters consecutive chunks share.
	DefaultOverlap = 50

	// boundaryLookback bounds how far back from the window edge a split
	// point is searched.
	boundaryLookback = 100
)

// Split slices text into chunks of at most maxSize characters with the given
// overlap between consecutive chunks. Text at or under maxSize comes back as
// a single trimmed chunk. Chunks are trimmed and empty ones dropped.
//
// An overlap >= maxSize would never advance the window; it is capped at
// maxSize-1 so the loop always terminates.
func Split(text string, maxSize, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize - 1
	}

	if len(text) <= maxSize {
		return []string{text}
	}

	var chunks []string
	start := 0

	for start < len(text) {
		end := start + maxSize

		if end < len(text) {
			if b := findBoundary(text, end); b > start {
				end = b
			}
		} else {
			end = len(text)
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(text) {
			break
		}
		next := end - overlap
		if next <= start {
			// A boundary pulled the window back far enough that the
			// overlap would stall it. Advance past the cut instead.
			next = end
		}
		start = next
	}

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// findBoundary returns the position just after the best split point before
// pos: sentence punctuation first, then clause punctuation, then a space,
// falling back to pos itself (hard cut).
func findBoundary(text string, pos int) int {
	searchStart := pos - boundaryLookback
	if searchStart < 0 {
		searchStart = 0
	}
	window := text[searchStart:pos]

	for _, markers := range []string{".!?\n", ",;:", " "} {
		if i := strings.LastIndexAny(window, markers); i != -1 {
			return searchStart + i + 1
		}
	}
	return pos
}
