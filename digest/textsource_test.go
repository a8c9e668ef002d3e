package digest

import (
	"testing"

	"github.com/mnemo-app/mnemo/db"
)

func completedRow(digester, content string) *db.Digest {
	return &db.Digest{
		Digester: digester,
		Status:   db.DigestStatusCompleted,
		Content:  &content,
	}
}

func TestResolveContentSourcesPriority(t *testing.T) {
	file := &db.FileRecord{Path: "links/article.md"}
	digests := []*db.Digest{
		completedRow("image-ocr", "ocr text"),
		completedRow("url-crawl-content", `{"markdown":"crawled body"}`),
	}

	sources := ResolveContentSources(file, digests)
	if len(sources) < 2 {
		t.Fatalf("expected at least 2 sources, got %d", len(sources))
	}
	if sources[0].SourceType != "url-crawl-content" || sources[0].Text != "crawled body" {
		t.Errorf("expected crawl content first, got %+v", sources[0])
	}
	if sources[1].SourceType != "image-ocr" || sources[1].Text != "ocr text" {
		t.Errorf("expected ocr second, got %+v", sources[1])
	}
}

func TestResolveContentSourcesIgnoresIncompleteRows(t *testing.T) {
	content := "partial"
	file := &db.FileRecord{Path: "doc.pdf"}
	digests := []*db.Digest{
		{Digester: "doc-to-markdown", Status: db.DigestStatusFailed, Content: &content},
		{Digester: "image-ocr", Status: db.DigestStatusTodo},
	}

	if sources := ResolveContentSources(file, digests); len(sources) != 0 {
		t.Errorf("expected no sources from incomplete rows, got %v", sources)
	}
}

func TestCrawlMarkdownFallsBackToRaw(t *testing.T) {
	digests := []*db.Digest{completedRow("url-crawl-content", "plain old markdown")}

	if got := crawlMarkdown(digests); got != "plain old markdown" {
		t.Errorf("expected raw fallback, got %q", got)
	}
}

func TestTranscriptTextJoinsSegments(t *testing.T) {
	digests := []*db.Digest{completedRow("speech-recognition",
		`{"text":"full","segments":[{"text":"hello"},{"text":"world"}]}`)}

	if got := transcriptText(digests); got != "hello world" {
		t.Errorf("expected joined segments, got %q", got)
	}
}

func TestCombinedTextJoinsWithBlankLines(t *testing.T) {
	file := &db.FileRecord{Path: "doc.pdf"}
	digests := []*db.Digest{
		completedRow("doc-to-markdown", "body"),
		completedRow("image-ocr", "scan"),
	}

	if got := CombinedText(file, digests); got != "body\n\nscan" {
		t.Errorf("unexpected combined text %q", got)
	}
}

func TestSummaryText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"json payload", `{"summary":"short version"}`, "short version"},
		{"raw text", "just a summary", "just a summary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			digests := []*db.Digest{completedRow("url-crawl-summary", tt.content)}
			got := SummaryText(digests)
			if got == nil || *got != tt.want {
				t.Errorf("SummaryText = %v, want %q", got, tt.want)
			}
		})
	}

	if got := SummaryText(nil); got != nil {
		t.Errorf("expected nil without a summary row, got %q", *got)
	}
}

func TestTagsText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"object payload", `{"tags":["go","search"]}`, "go, search"},
		{"bare array", `["a","b","c"]`, "a, b, c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			digests := []*db.Digest{completedRow("tags", tt.content)}
			got := TagsText(digests)
			if got == nil || *got != tt.want {
				t.Errorf("TagsText = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestHasTextSource(t *testing.T) {
	file := &db.FileRecord{Path: "doc.pdf"}
	digests := []*db.Digest{completedRow("doc-to-markdown", "0123456789")}

	if !HasTextSource(file, digests, 10) {
		t.Error("expected 10 runes to satisfy minLen 10")
	}
	if HasTextSource(file, digests, 11) {
		t.Error("expected 10 runes to fail minLen 11")
	}
}

func TestIsPlainTextPath(t *testing.T) {
	if !isPlainTextPath("notes/Todo.MD") {
		t.Error("expected .MD to be plain text")
	}
	if !isPlainTextPath("a.txt") {
		t.Error("expected .txt to be plain text")
	}
	if isPlainTextPath("a.pdf") {
		t.Error("expected .pdf not to be plain text")
	}
}
