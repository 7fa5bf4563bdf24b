// Package textutil holds the small string helpers shared by the backends and
// the terminal host. Limits are in bytes; cuts never split a UTF-8 sequence.
package textutil

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// Truncate shortens text to at most limit bytes, ending in "..." when it
// had to cut and there is room for it.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	if limit <= len(ellipsis) {
		return text[:runeBoundary(text, limit)]
	}
	return text[:runeBoundary(text, limit-len(ellipsis))] + ellipsis
}

// runeBoundary backs cut up to the start of the character it falls in.
func runeBoundary(text string, cut int) int {
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}

// CompactSingleLine collapses all whitespace runs to one space, then
// truncates.
func CompactSingleLine(text string, limit int) string {
	return Truncate(strings.Join(strings.Fields(text), " "), limit)
}

// Wrap breaks each line of text on word boundaries so that no line is wider
// than width characters, unless a single word already is.
func Wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	wrapped := make([]string, 0, len(lines))
	for _, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			wrapped = append(wrapped, "")
			continue
		}
		current := words[0]
		currentWidth := utf8.RuneCountInString(current)
		for _, word := range words[1:] {
			wordWidth := utf8.RuneCountInString(word)
			if currentWidth+1+wordWidth <= width {
				current += " " + word
				currentWidth += 1 + wordWidth
				continue
			}
			wrapped = append(wrapped, current)
			current, currentWidth = word, wordWidth
		}
		wrapped = append(wrapped, current)
	}
	return strings.Join(wrapped, "\n")
}
