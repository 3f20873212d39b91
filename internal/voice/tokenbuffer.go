package voice

import "strings"

const (
	flushMinLength  = 50
	flushMinWords   = 8
	flushCutWindow  = 100
	sentenceEndMark = ".!?"
)

// flushBoundary decides where the streaming token buffer should be cut for
// the next TTS fragment. It returns the exclusive end index of the fragment,
// or -1 when the buffer should keep accumulating.
//
// A sentence-terminating punctuation followed by whitespace flushes through
// the punctuation. Failing that, a buffer longer than 50 chars with at least
// 8 words flushes at the last space before position 100.
func flushBoundary(buf string) int {
	for i := 0; i < len(buf)-1; i++ {
		if strings.IndexByte(sentenceEndMark, buf[i]) >= 0 && isASCIISpace(buf[i+1]) {
			return i + 1
		}
	}

	if len(buf) > flushMinLength && len(strings.Fields(buf)) >= flushMinWords {
		limit := flushCutWindow
		if limit > len(buf) {
			limit = len(buf)
		}
		if idx := strings.LastIndexByte(buf[:limit], ' '); idx > 0 {
			return idx
		}
	}
	return -1
}

func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
