// Package spam marks mechanically-obvious noise as non-actionable.
//
// Only truly mechanical junk is filtered. Hot takes, weird takes, and
// low-effort reactions are not spam; the content generator decides what
// those deserve.
package spam

import (
	"strings"
	"unicode"
)

// IsSpam reports whether content is mechanical noise, with a stable reason.
func IsSpam(content string) (bool, string) {
	content = strings.TrimSpace(content)

	if len(content) < 2 {
		return true, "empty"
	}

	// Same word 5+ times making up more than half the content
	words := strings.Fields(strings.ToLower(content))
	if len(words) > 0 {
		counts := make(map[string]int, len(words))
		top := 0
		for _, w := range words {
			counts[w]++
			if counts[w] > top {
				top = counts[w]
			}
		}
		if top >= 5 && float64(top)/float64(len(words)) > 0.5 {
			return true, "repetitive"
		}
	}

	// Mostly non-alphanumeric noise
	alnum := 0
	runes := []rune(content)
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			alnum++
		}
	}
	if len(runes) > 10 && float64(alnum)/float64(len(runes)) < 0.3 {
		return true, "char_noise"
	}

	return false, ""
}
