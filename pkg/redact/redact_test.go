package redact

import (
	"strings"
	"testing"
)

func TestTextDisabledPassesThrough(t *testing.T) {
	SetEnabled(false)
	in := "patient id 4471<AT>example.com" // arbitrary text
	if got := Text(in); got != in {
		t.Fatalf("expected passthrough when disabled, got %q", got)
	}
}

func TestTextMasksIdentifiers(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)

	out := Text("patient born 12.04.1957, MRN: 99-1204, call +49 170 1234567, mail jane.doe@example.com")
	for _, leak := range []string{"1957", "99-1204", "1234567", "jane.doe@example.com"} {
		if strings.Contains(out, leak) {
			t.Fatalf("expected %q to be masked, got %q", leak, out)
		}
	}
	for _, marker := range []string{"[REDACTED_DOB]", "[REDACTED_MRN]", "[REDACTED_PHONE]", "[REDACTED_EMAIL]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("expected marker %q in %q", marker, out)
		}
	}
}

func TestTextKeepsClinicalContent(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)

	in := "unauffälliger Befund, no pleural effusion at C5"
	if got := Text(in); got != in {
		t.Fatalf("expected clinical text untouched, got %q", got)
	}
}
