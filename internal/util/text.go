package util

import (
	"regexp"
	"strings"
)

// Truncate cuts s to at most n runes, appending "..." when it was shortened.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n]) + "..."
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// CollapseBlankLines reduces runs of three or more newlines to one blank line.
func CollapseBlankLines(s string) string {
	return blankRuns.ReplaceAllString(s, "\n\n")
}

var whitespace = regexp.MustCompile(`\s+`)

// CollapseWhitespace replaces every whitespace run with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
