package memory

import (
	"strings"
	"testing"
)

func TestNormalizePutOptions(t *testing.T) {
	opts := NormalizePutOptions(PutOptions{})
	if opts.Emotion != DefaultEmotion {
		t.Fatalf("expected default emotion, got %q", opts.Emotion)
	}
	if opts.Tags == nil || opts.Metadata == nil {
		t.Fatal("expected non-nil tags and metadata")
	}
	if opts.Public {
		t.Fatal("zero value must stay private")
	}

	opts = NormalizePutOptions(PutOptions{Emotion: "  happy  "})
	if opts.Emotion != "happy" {
		t.Fatalf("expected trimmed emotion, got %q", opts.Emotion)
	}
}

func TestNormalizeSearchParams(t *testing.T) {
	params := NormalizeSearchParams(SearchParams{})
	if params.Limit != DefaultSearchLimit {
		t.Fatalf("expected default limit, got %d", params.Limit)
	}

	params = NormalizeSearchParams(SearchParams{Limit: 100000})
	if params.Limit != maxSearchLimit {
		t.Fatalf("expected limit capped at %d, got %d", maxSearchLimit, params.Limit)
	}

	params = NormalizeSearchParams(SearchParams{Tags: []string{" a ", "", "b"}})
	if len(params.Tags) != 2 || params.Tags[0] != "a" || params.Tags[1] != "b" {
		t.Fatalf("expected trimmed non-empty tags, got %v", params.Tags)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("short", 10); got != "short" {
		t.Fatalf("expected passthrough, got %q", got)
	}
	if got := Preview("a longer piece of text", 8); got != "a longer..." {
		t.Fatalf("unexpected preview: %q", got)
	}
	// Multibyte text must not be split mid-rune.
	got := Preview(strings.Repeat("ü", 20), 5)
	if got != strings.Repeat("ü", 5)+"..." {
		t.Fatalf("unexpected multibyte preview: %q", got)
	}
}
