package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// NormalizeRejectionReason trims raw and enforces the length limits.
func NormalizeRejectionReason(raw string) (string, error) {
	reason := strings.TrimSpace(raw)
	if reason == "" {
		return "", ErrEmptyReason
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return "", ErrReasonTooLong
	}
	return reason, nil
}

// RejectionExpiry is when a rejection made at now stops being listed.
func RejectionExpiry(now time.Time) time.Time {
	return now.UTC().Add(RejectionTTL)
}
