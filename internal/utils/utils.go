package utils

import "strings"

func Any[T any](xs []T, pred func(T) bool) bool {
	for _, x := range xs {
		if pred(x) {
			return true
		}
	}
	return false
}

// Preview returns at most the first two lines of s, cut to maxRunes runes.
func Preview(s string, maxRunes int) string {
	lines := strings.SplitN(s, "\n", 3)
	if len(lines) > 2 {
		lines = lines[:2]
	}
	preview := strings.Join(lines, "\n")

	runes := []rune(preview)
	if len(runes) > maxRunes {
		return string(runes[:maxRunes])
	}
	return preview
}
