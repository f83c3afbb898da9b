package domain

import (
	"regexp"
	"strings"
)

var signaturePattern = regexp.MustCompile(`^[A-Za-z]{2}$`)

// FormatSignature normalizes raw initials to the canonical X.Y form.
// Dots and whitespace are ignored, so "jd", "J.D" and "j. d" all yield "J.D".
func FormatSignature(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '.' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, raw)

	if !signaturePattern.MatchString(cleaned) {
		return "", ErrInvalidSignature
	}

	upper := strings.ToUpper(cleaned)
	return upper[:1] + "." + upper[1:], nil
}
