package ingest

import "unicode/utf8"

// TruncateBytes cuts input to at most maxBytes without splitting a rune.
// A maxBytes of zero or less disables the limit.
func TruncateBytes(input string, maxBytes int) string {
	if maxBytes <= 0 || len(input) <= maxBytes {
		return input
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(input[cut]) {
		cut--
	}
	return input[:cut]
}
