package voice

import (
	"regexp"
	"strings"
)

// MaxSpokenReplyChars caps how much of an LLM reply is kept in history and
// spoken. Longer replies are cut at a sentence boundary.
const MaxSpokenReplyChars = 300

var (
	fencedCodePattern   = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern   = regexp.MustCompile("`([^`]*)`")
	markdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((?:.*?)\)`)
	boldPattern         = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern       = regexp.MustCompile(`\*(.*?)\*`)
	boldUnderPattern    = regexp.MustCompile(`__(.*?)__`)
	italicUnderPattern  = regexp.MustCompile(`\b_(.*?)_\b`)
	headingPattern      = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

// SanitizeReplyText strips markdown artifacts from model output so the TTS
// provider does not read asterisks and backticks aloud.
func SanitizeReplyText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = fencedCodePattern.ReplaceAllString(raw, " ")
	raw = inlineCodePattern.ReplaceAllString(raw, "$1")
	raw = markdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = boldPattern.ReplaceAllString(raw, "$1")
	raw = boldUnderPattern.ReplaceAllString(raw, "$1")
	raw = italicPattern.ReplaceAllString(raw, "$1")
	raw = italicUnderPattern.ReplaceAllString(raw, "$1")
	raw = headingPattern.ReplaceAllString(raw, "")

	return strings.TrimSpace(whitespacePattern.ReplaceAllString(raw, " "))
}

// PolishReply prepares a full LLM reply for history and speech: markdown
// stripped, truncated at a sentence boundary, terminal punctuation ensured.
func PolishReply(raw string) string {
	text := SanitizeReplyText(raw)
	if text == "" {
		return ""
	}
	text = truncateAtSentence(text, MaxSpokenReplyChars)
	return ensureTerminalPunctuation(text)
}

func truncateAtSentence(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := runes[:max]

	// Prefer the last sentence end inside the window, as long as it is not
	// so early that the reply becomes a fragment of a fragment.
	for i := len(cut) - 1; i > max/2; i-- {
		if isSentenceEnd(cut[i]) {
			return strings.TrimSpace(string(cut[:i+1]))
		}
	}
	for i := len(cut) - 1; i > 0; i-- {
		if cut[i] == ' ' {
			return strings.TrimSpace(string(cut[:i]))
		}
	}
	return strings.TrimSpace(string(cut))
}

func ensureTerminalPunctuation(text string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return text
	}
	if isSentenceEnd(runes[len(runes)-1]) {
		return text
	}
	return text + "."
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
