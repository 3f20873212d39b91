package knowledge

import "strings"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ChunkText splits text into overlapping windows of roughly size characters.
// Window ends are snapped to the last sentence or paragraph boundary within
// the window when that boundary lies past the halfway mark. The next window
// start always advances strictly forward, so chunking terminates for any
// non-empty input with overlap < size.
func ChunkText(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		window := text[start:end]
		if snap := snapToBoundary(window); snap > size/2 {
			end = start + snap
		}

		chunks = append(chunks, text[start:end])

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// snapToBoundary returns the cut position just after the last paragraph break
// or sentence end in the window, or 0 when there is none.
func snapToBoundary(window string) int {
	best := 0
	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
		best = idx + 2
	}
	if idx := strings.LastIndexByte(window, '.'); idx+1 > best {
		best = idx + 1
	}
	return best
}
