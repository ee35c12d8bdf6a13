package utils

import "unicode/utf8"

// Truncate shortens s to at most n runes and marks the cut with an ellipsis.
// Multi-byte characters are never split.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	cut := 0
	for i := range s {
		if n == 0 {
			cut = i
			break
		}
		n--
	}
	return s[:cut] + "…"
}
