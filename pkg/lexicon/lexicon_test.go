package lexicon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultContainsCorrectionsAndTerms(t *testing.T) {
	lx := Default()
	if got := lx.Corrections["new monia"]; got != "pneumonia" {
		t.Fatalf(`expected "pneumonia", got %q`, got)
	}
	if len(lx.Terms) == 0 {
		t.Fatalf("expected built-in terms")
	}
}

func TestLoadOverlayFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	content := `
corrections:
  "new monia": "bronchopneumonia"
  "sella turcia": "sella turcica"
terms:
  - "sella turcica"
  - "Pneumonia"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	lx, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := lx.Corrections["new monia"]; got != "bronchopneumonia" {
		t.Fatalf("overlay should override built-in, got %q", got)
	}
	if got := lx.Corrections["sella turcia"]; got != "sella turcica" {
		t.Fatalf("overlay entry missing, got %q", got)
	}
	found := false
	for _, term := range lx.Terms {
		if term == "sella turcica" {
			found = true
		}
	}
	if !found {
		t.Fatalf("overlay term not merged")
	}
	// "Pneumonia" duplicates a built-in term and must not appear twice.
	count := 0
	for _, term := range lx.Terms {
		if strings.EqualFold(term, "pneumonia") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one pneumonia entry, got %d", count)
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	lx, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(lx.Corrections) == 0 {
		t.Fatalf("expected built-in corrections")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
