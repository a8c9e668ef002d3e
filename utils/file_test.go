package utils

import "testing"

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"what?.md", "what_.md"},
		{"a<b>c:d.txt", "a_b_c_d.txt"},
		{"path/to/file.txt", "file.txt"},
		{`pipe|star*.md`, "pipe_star_.md"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"photo.jpg", "image/jpeg"},
		{"photo.JPG", "image/jpeg"},
		{"scan.png", "image/png"},
		{"notes.md", "text/markdown"},
		{"doc.pdf", "application/pdf"},
		{"slides.pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation"},
		{"voice.m4a", "audio/mp4"},
		{"clip.mov", "video/quicktime"},
		{"mystery.xyz", "application/octet-stream"},
		{"noextension", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := DetectMimeType(tt.filename); got != tt.want {
			t.Errorf("DetectMimeType(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestMimeClassifiers(t *testing.T) {
	if !IsImageMime("image/png") || IsImageMime("video/mp4") {
		t.Error("IsImageMime misclassified")
	}
	if !IsAudioMime("audio/wav") || IsAudioMime("image/png") {
		t.Error("IsAudioMime misclassified")
	}
	if !IsVideoMime("video/webm") || IsVideoMime("audio/ogg") {
		t.Error("IsVideoMime misclassified")
	}
	if !IsDocumentMime("application/pdf") {
		t.Error("expected pdf to be a document")
	}
	if IsDocumentMime("text/plain") {
		t.Error("plain text is not a convertible document")
	}
}
