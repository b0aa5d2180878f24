package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

// Transcripts routinely contain patient identifiers spoken aloud. The
// patterns below cover the identifiers that must never reach the logs.
var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
	mrnRe   = regexp.MustCompile(`(?i)\b(?:mrn|patient (?:id|number)|case number)[:#\s]*\d[\d\-]*\b`)
	dobRe   = regexp.MustCompile(`(?i)\b(?:born|date of birth|dob)[:\s]+\d{1,4}[./\-]\d{1,2}[./\-]\d{1,4}\b`)
)

// SetEnabled toggles identifier redaction.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text masks emails, phone numbers, record numbers and birth dates when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	out = mrnRe.ReplaceAllString(out, "[REDACTED_MRN]")
	out = dobRe.ReplaceAllString(out, "[REDACTED_DOB]")
	return out
}
