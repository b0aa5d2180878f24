package deepgram

import (
	"testing"

	"github.com/cortexmed/scriba/pkg/adapters/asr"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestOptionsBoostKeywordsForMedicalContext(t *testing.T) {
	tr, err := New(Config{
		APIKey:      "key",
		SmartFormat: true,
		Keywords:    []string{"pneumothorax", "atelectasis"},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	opts := tr.options(asr.Request{Language: "en", MedicalContext: true})
	if opts.Language != "en" || opts.DetectLanguage {
		t.Fatalf("expected fixed language en, got %q detect=%v", opts.Language, opts.DetectLanguage)
	}
	if len(opts.Keywords) != 2 || opts.Keywords[0] != "pneumothorax" {
		t.Fatalf("expected lexicon keywords, got %v", opts.Keywords)
	}
	if !opts.SmartFormat || !opts.Punctuate {
		t.Fatalf("expected smart format and punctuation enabled")
	}

	opts = tr.options(asr.Request{Language: "en"})
	if opts.Keywords != nil {
		t.Fatalf("keywords set without medical context: %v", opts.Keywords)
	}
}

func TestOptionsDetectLanguageForAuto(t *testing.T) {
	tr, err := New(Config{APIKey: "key"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, lang := range []string{"", "auto"} {
		opts := tr.options(asr.Request{Language: lang})
		if !opts.DetectLanguage || opts.Language != "" {
			t.Fatalf("language %q: expected detection, got %q detect=%v", lang, opts.Language, opts.DetectLanguage)
		}
	}
	if opts := tr.options(asr.Request{}); opts.Model != "nova-2-medical" {
		t.Fatalf("expected default model, got %q", opts.Model)
	}
}
