package textutil_test

import (
	"strings"
	"testing"

	"vodingest/internal/textutil"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Trailer.MP4", "trailer.mp4"},
		{"Crème Brûlée (final).mov", "creme-brulee-final.mov"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\clip.mkv`, "clip.mkv"},
		{"   ", "file"},
		{"???.png", "file.png"},
		{"no extension", "no-extension"},
		{"poster..jpg", "poster.jpg"},
	}
	for _, tt := range tests {
		if got := textutil.SanitizeFileName(tt.in); got != tt.want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := textutil.SanitizeFileName(strings.Repeat("a", 400) + ".mp4")
	if len(long) > 120 || !strings.HasSuffix(long, ".mp4") {
		t.Fatalf("expected truncated name keeping extension, got %d chars %q", len(long), long[len(long)-8:])
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"The Matrix Reloaded", "the-matrix-reloaded"},
		{"Amélie", "amelie"},
		{"S01 / E02", "s01-e02"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := textutil.Slug(tt.in); got != tt.want {
			t.Fatalf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := textutil.SanitizeToken("User 42"); got != "user_42" {
		t.Fatalf("SanitizeToken = %q", got)
	}
	if got := textutil.SanitizeToken(""); got != "unknown" {
		t.Fatalf("SanitizeToken empty = %q", got)
	}
}
