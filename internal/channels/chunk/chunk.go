// Package chunk splits outbound text into platform-sized segments without
// breaking lines.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkLimit is the default maximum chunk size in characters.
const DefaultChunkLimit = 4000

// ChannelLimits defines default message size limits for various platforms.
var ChannelLimits = map[string]int{
	"discord":  2000,
	"telegram": 4096,
	"slack":    40000,
	"cli":      0,
}

// GetChannelLimit returns the message size limit for a channel.
// A limit of zero means the channel accepts text of any size.
func GetChannelLimit(channel string) int {
	if limit, ok := ChannelLimits[strings.ToLower(channel)]; ok {
		return limit
	}
	return DefaultChunkLimit
}

// Lines splits text into segments of at most limit characters, only ever
// breaking between lines. Every line keeps its terminator, so concatenating
// the result reproduces text exactly.
//
// A single line longer than limit is not split further: it is emitted as its
// own oversized segment. Callers that need a hard upper bound must handle
// that case themselves.
//
// Lengths are counted in characters (runes), not bytes.
func Lines(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	var (
		chunks     []string
		current    strings.Builder
		currentLen int
	)

	for _, line := range SplitLines(text) {
		lineLen := utf8.RuneCountInString(line)
		if currentLen > 0 && currentLen+lineLen > limit {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
		current.WriteString(line)
		currentLen += lineLen
	}

	if currentLen > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// SplitLines breaks text into physical lines, each retaining its trailing
// terminator. "\r\n" is one terminator; "\n", "\r", "\v", "\f", the
// separators U+001C to U+001E, U+0085, U+2028 and U+2029 each end a line on
// their own. The final line has no terminator when text does not end with one.
func SplitLines(text string) []string {
	var lines []string
	start := 0
	for i, r := range text {
		if !isLineBreak(r) {
			continue
		}
		end := i + utf8.RuneLen(r)
		if r == '\r' && end < len(text) && text[end] == '\n' {
			continue
		}
		lines = append(lines, text[start:end])
		start = end
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

// ForChannel splits text for a specific channel using its default limit.
func ForChannel(text, channel string) []string {
	return Lines(text, GetChannelLimit(channel))
}

// Fits reports whether text can be delivered as a single message under limit.
func Fits(text string, limit int) bool {
	return limit <= 0 || utf8.RuneCountInString(text) <= limit
}
