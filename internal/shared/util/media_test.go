package util

import "testing"

func TestMediaExtension(t *testing.T) {
	tests := []struct {
		mime string
		name string
		want string
	}{
		{mime: "image/png", want: ".png"},
		{mime: "video/mp4; codecs=avc1", want: ".mp4"},
		{mime: "application/octet-stream", name: "clip.MOV", want: ".mov"},
		{mime: "", name: "noext", want: ".bin"},
	}
	for _, tt := range tests {
		if got := MediaExtension(tt.mime, tt.name); got != tt.want {
			t.Fatalf("MediaExtension(%q, %q) = %q, want %q", tt.mime, tt.name, got, tt.want)
		}
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Fatalf("unexpected %q", got)
	}
}
