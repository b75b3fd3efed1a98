package types

import (
	"strings"
	"unicode/utf8"
)

// MaxContentLength bounds message content in runes, applied after trimming.
const MaxContentLength = 500

// Preview bounds differ by author role.
const (
	UserPreviewLength  = 50
	AdminPreviewLength = 40
)

// TruncationMarker is appended whenever content or a preview is cut.
const TruncationMarker = "..."

// NormalizeContent trims surrounding whitespace and enforces
// MaxContentLength. Returns "" for content that is empty after trimming;
// callers treat that as a silent rejection.
func NormalizeContent(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return Truncate(trimmed, MaxContentLength)
}

// Truncate cuts s to at most limit runes, appending TruncationMarker when
// anything was removed.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + TruncationMarker
}

// PreviewFor derives the registry preview text for content authored by the
// given role.
func PreviewFor(content, role string) string {
	if role == RoleAdmin {
		return Truncate(content, AdminPreviewLength)
	}
	return Truncate(content, UserPreviewLength)
}
