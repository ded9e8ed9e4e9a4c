package podcast

import (
	"strings"
	"unicode/utf8"
)

// Render writes the script as a plain transcript, one "role: content" line
// per turn. The output is deterministic for a given script.
func Render(s Script) string {
	var b strings.Builder
	for i, turn := range s.Turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(turn.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(turn.Content))
	}
	return b.String()
}

// Preview shortens text to at most n runes, marking the cut with an ellipsis
func Preview(text string, n int) string {
	text = strings.TrimSpace(text)
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "…"
}
