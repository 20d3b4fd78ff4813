package util

import "unicode/utf8"

// MaxLogBodySize is the default maximum body size for logging (10KB).
const MaxLogBodySize = 10 * 1024

// TruncatedSuffix is appended to bodies cut by TruncateBody.
const TruncatedSuffix = "...(truncated)"

// TruncateBody truncates data to at most maxSize bytes, appending
// TruncatedSuffix if it was cut. The cut never splits a UTF-8 sequence.
// If maxSize <= 0, uses MaxLogBodySize.
func TruncateBody(data string, maxSize int) string {
	if maxSize <= 0 {
		maxSize = MaxLogBodySize
	}
	if len(data) <= maxSize {
		return data
	}
	cut := maxSize
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return data[:cut] + TruncatedSuffix
}
