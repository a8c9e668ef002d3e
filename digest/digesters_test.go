package digest

import (
	"context"
	"strings"
	"testing"

	"github.com/mnemo-app/mnemo/db"
)

func textFile(path, preview string) *db.FileRecord {
	f := testFile(path)
	f.TextPreview = &preview
	return f
}

func TestURLCrawlApplies(t *testing.T) {
	d := &URLCrawlDigester{}

	tests := []struct {
		name string
		file *db.FileRecord
		want bool
	}{
		{"txt with url", textFile("inbox/note.txt", "https://example.com/article"), true},
		{"md with url", textFile("links/article.md", "http://example.com"), true},
		{"padded url", textFile("inbox/note.txt", "  https://example.com\n"), true},
		{"txt without url", textFile("inbox/note.txt", "just some notes"), false},
		{"url mid-text", textFile("inbox/note.txt", "see https://example.com"), false},
		{"no preview", testFile("photo.jpg"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Applies(context.Background(), tt.file, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Applies(%s) = %v, want %v", tt.file.Path, got, tt.want)
			}
		})
	}
}

func TestURLCrawlSummaryApplies(t *testing.T) {
	d := &URLCrawlSummaryDigester{}
	file := textFile("inbox/note.txt", "https://example.com")

	if ok, _ := d.Applies(context.Background(), file, nil); ok {
		t.Error("should not apply before the crawl completed")
	}

	long := strings.Repeat("a", 120)
	digests := []*db.Digest{completedRow("url-crawl-content", `{"markdown":"`+long+`"}`)}
	if ok, _ := d.Applies(context.Background(), file, digests); !ok {
		t.Error("should apply once crawled content reaches 100 chars")
	}

	short := strings.Repeat("a", 40)
	digests = []*db.Digest{completedRow("url-crawl-content", `{"markdown":"`+short+`"}`)}
	if ok, _ := d.Applies(context.Background(), file, digests); ok {
		t.Error("should not apply below 100 chars of content")
	}
}

func TestTagsApplies(t *testing.T) {
	d := &TagsDigester{}
	file := testFile("photo.jpg")

	if ok, _ := d.Applies(context.Background(), file, nil); ok {
		t.Error("should not apply without a text source")
	}

	digests := []*db.Digest{completedRow("image-ocr", "a receipt from the store")}
	if ok, _ := d.Applies(context.Background(), file, digests); !ok {
		t.Error("should apply once OCR text exists")
	}

	digests = []*db.Digest{completedRow("image-ocr", "hi")}
	if ok, _ := d.Applies(context.Background(), file, digests); ok {
		t.Error("should not apply below 10 chars of text")
	}

	folder := testFile("photos")
	folder.IsFolder = true
	digests = []*db.Digest{completedRow("image-ocr", "a receipt from the store")}
	if ok, _ := d.Applies(context.Background(), folder, digests); ok {
		t.Error("should not apply to folders")
	}
}

func TestSlugApplies(t *testing.T) {
	d := &SlugDigester{}
	file := testFile("photo.jpg")

	if ok, _ := d.Applies(context.Background(), file, nil); ok {
		t.Error("should not apply without text")
	}

	digests := []*db.Digest{completedRow("image-ocr", "short text")}
	if ok, _ := d.Applies(context.Background(), file, digests); ok {
		t.Error("should not apply below 20 chars of source text")
	}

	digests = []*db.Digest{completedRow("image-ocr", "a grocery receipt from the corner store")}
	if ok, _ := d.Applies(context.Background(), file, digests); !ok {
		t.Error("should apply with a 20+ char source")
	}

	// A summary qualifies on its own, regardless of length
	digests = []*db.Digest{completedRow("url-crawl-summary", `{"summary":"short"}`)}
	if ok, _ := d.Applies(context.Background(), file, digests); !ok {
		t.Error("should apply when a summary exists")
	}
}

func TestSlugSourcePrefersSummary(t *testing.T) {
	file := testFile("photo.jpg")
	digests := []*db.Digest{
		completedRow("image-ocr", "the full extracted text of the photographed page"),
		completedRow("url-crawl-summary", `{"summary":"an article about something"}`),
	}

	text, sourceType := slugSource(file, digests)
	if sourceType != "summary" {
		t.Errorf("expected summary source, got %s", sourceType)
	}
	if text != "an article about something" {
		t.Errorf("unexpected slug text %q", text)
	}

	// Without a summary the first qualifying content source wins
	text, sourceType = slugSource(file, digests[:1])
	if sourceType != "image-ocr" {
		t.Errorf("expected image-ocr source, got %s", sourceType)
	}
	if text == "" {
		t.Error("expected source text")
	}
}
