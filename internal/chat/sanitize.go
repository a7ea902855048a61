// Package chat holds in-match chat helpers: line sanitizing and per-player
// throttling.
package chat

import (
	"strings"
	"unicode"
)

// Sanitize truncates text to maxLen characters, drops control characters and
// trims surrounding whitespace. An empty result means the line is dropped.
func Sanitize(text string, maxLen int) string {
	runes := []rune(text)
	if maxLen > 0 && len(runes) > maxLen {
		runes = runes[:maxLen]
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, string(runes))
	return strings.TrimSpace(cleaned)
}
