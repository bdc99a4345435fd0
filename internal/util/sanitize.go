package util

import (
	"regexp"
	"strings"
)

var collapseWhitespace = regexp.MustCompile(`\s+`)

// SanitizeText strips angle brackets and collapses runs of whitespace so
// free-text form fields are safe to echo back in JSON responses.
func SanitizeText(s string) string {
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	s = collapseWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ContainsSuspicious flags markup or template-injection characters in input
// that should never carry them (emails, names, identifiers).
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, c := range []string{"<", ">", "${", "script", "onerror", "onload"} {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}
