// Package textstat computes simple surface statistics of submission text.
package textstat

import "strings"

// Words counts whitespace-separated words.
func Words(s string) int {
	return len(strings.Fields(s))
}

// Paragraphs counts non-empty blocks separated by blank lines.
// Text without blank lines but with several lines counts each non-empty line.
func Paragraphs(s string) int {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	blocks := 0
	for _, b := range strings.Split(s, "\n\n") {
		if strings.TrimSpace(b) != "" {
			blocks++
		}
	}
	if blocks > 1 {
		return blocks
	}
	lines := 0
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			lines++
		}
	}
	if lines > blocks {
		return lines
	}
	return blocks
}
