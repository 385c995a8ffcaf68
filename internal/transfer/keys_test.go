package transfer

import (
	"strings"
	"testing"
	"time"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"clip.mp4", "clip.mp4"},
		{"my song (live).mp3", "my song _live_.mp3"},
		{"../../etc/passwd", "passwd"},
		{"naïve.txt", "na_ve.txt"},
		{"", "file"},
		{"/", "file"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeNameKeepsExtensionWhenTruncating(t *testing.T) {
	got := SanitizeName(strings.Repeat("a", 300) + ".flac")
	if len(got) != maxNameLen {
		t.Fatalf("len = %d, want %d", len(got), maxNameLen)
	}
	if !strings.HasSuffix(got, ".flac") {
		t.Errorf("extension lost: %q", got)
	}
}

func TestObjectKey(t *testing.T) {
	now := time.Unix(1700000000, 0)
	if got := ObjectKey("42", "a b.mp3", now); got != "user_42/1700000000_a b.mp3" {
		t.Errorf("ObjectKey = %q", got)
	}
	if got := ObjectKey("", "x", now); got != "user_anonymous/1700000000_x" {
		t.Errorf("ObjectKey without owner = %q", got)
	}
}

func TestUniqueKey(t *testing.T) {
	if got := uniqueKey("user_1/5_a.mp3", "abcd1234"); got != "user_1/5_a_abcd1234.mp3" {
		t.Errorf("uniqueKey = %q", got)
	}
	if got := uniqueKey("user_1/5_noext", "ff"); got != "user_1/5_noext_ff" {
		t.Errorf("uniqueKey without extension = %q", got)
	}
}
