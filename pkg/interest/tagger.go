// Package interest extracts interest markers from generated responses.
//
// The language model is instructed to tag detected interests inline as
// [INTEREST: name]. This package finds those markers and produces a
// synthesis-safe version of the text with the markers removed.
package interest

import (
	"regexp"
	"strings"
)

var markerPattern = regexp.MustCompile(`\[INTEREST:\s*([^\]]+)\]`)

// Extract returns the ordered list of distinct interest names found in text
// that are not already known. Names are trimmed; empty captures are dropped.
func Extract(text string, known map[string]bool) []string {
	var names []string
	seen := make(map[string]bool, len(known))
	for k := range known {
		seen[k] = true
	}

	for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	return names
}

// Strip removes all interest markers from text, collapsing the resulting
// whitespace to single spaces. The output is what gets synthesized.
func Strip(text string) string {
	cleaned := markerPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(cleaned), " ")
}
