package digest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/mnemo-app/mnemo/config"
	"github.com/mnemo-app/mnemo/db"
)

// ContentSource is one stream of text derived for a file. Sources are kept
// separate so semantic indexing can attribute chunks to their origin.
type ContentSource struct {
	SourceType string
	Text       string
}

// ResolveContentSources returns every available text source for a file,
// in priority order:
//  1. url-crawl-content (JSON, markdown field)
//  2. doc-to-markdown (raw)
//  3. image-ocr (raw)
//  4. speech-recognition (JSON segments, else raw)
//  5. file (read .md/.txt from disk)
func ResolveContentSources(file *db.FileRecord, digests []*db.Digest) []ContentSource {
	var sources []ContentSource

	if text := crawlMarkdown(digests); text != "" {
		sources = append(sources, ContentSource{SourceType: "url-crawl-content", Text: text})
	}

	if text := completedContent(digests, "doc-to-markdown"); text != "" {
		sources = append(sources, ContentSource{SourceType: "doc-to-markdown", Text: text})
	}

	if text := completedContent(digests, "image-ocr"); text != "" {
		sources = append(sources, ContentSource{SourceType: "image-ocr", Text: text})
	}

	if text := transcriptText(digests); text != "" {
		sources = append(sources, ContentSource{SourceType: "speech-recognition", Text: text})
	}

	if isPlainTextPath(file.Path) {
		fullPath := filepath.Join(config.Get().DataDir, file.Path)
		if content, err := os.ReadFile(fullPath); err == nil && len(content) > 0 {
			sources = append(sources, ContentSource{SourceType: "file", Text: string(content)})
		}
	}

	return sources
}

// CombinedText joins all sources with blank lines, for keyword indexing
// and tag generation
func CombinedText(file *db.FileRecord, digests []*db.Digest) string {
	sources := ResolveContentSources(file, digests)
	var texts []string
	for _, s := range sources {
		if s.Text != "" {
			texts = append(texts, s.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// SummaryText returns the best available summary, preferring the crawl
// summary. Accepts both {"summary": ...} JSON and raw text.
func SummaryText(digests []*db.Digest) *string {
	for _, d := range digests {
		if d.Digester != "url-crawl-summary" || d.Status != db.DigestStatusCompleted || d.Content == nil {
			continue
		}
		var data struct {
			Summary string `json:"summary"`
		}
		if err := json.Unmarshal([]byte(*d.Content), &data); err == nil && data.Summary != "" {
			return &data.Summary
		}
		return d.Content
	}
	return nil
}

// TagsText returns the generated tags as a comma-separated string, or nil
func TagsText(digests []*db.Digest) *string {
	for _, d := range digests {
		if d.Digester != "tags" || d.Status != db.DigestStatusCompleted || d.Content == nil {
			continue
		}

		var data struct {
			Tags []string `json:"tags"`
		}
		if err := json.Unmarshal([]byte(*d.Content), &data); err == nil && len(data.Tags) > 0 {
			tags := strings.Join(data.Tags, ", ")
			return &tags
		}

		var arr []string
		if err := json.Unmarshal([]byte(*d.Content), &arr); err == nil && len(arr) > 0 {
			tags := strings.Join(arr, ", ")
			return &tags
		}
	}
	return nil
}

// HasTextSource reports whether a file has at least minLen runes of
// derivable text
func HasTextSource(file *db.FileRecord, digests []*db.Digest, minLen int) bool {
	total := 0
	for _, s := range ResolveContentSources(file, digests) {
		total += len([]rune(s.Text))
		if total >= minLen {
			return true
		}
	}
	return false
}

// crawlMarkdown extracts the markdown field from the url-crawl-content
// JSON payload, falling back to the raw content for older rows
func crawlMarkdown(digests []*db.Digest) string {
	for _, d := range digests {
		if d.Digester != "url-crawl-content" || d.Status != db.DigestStatusCompleted || d.Content == nil {
			continue
		}
		var data struct {
			Markdown string `json:"markdown"`
		}
		if err := json.Unmarshal([]byte(*d.Content), &data); err == nil && data.Markdown != "" {
			return data.Markdown
		}
		return *d.Content
	}
	return ""
}

// transcriptText extracts transcript text, joining JSON segments when the
// payload carries them
func transcriptText(digests []*db.Digest) string {
	for _, d := range digests {
		if d.Digester != "speech-recognition" || d.Status != db.DigestStatusCompleted || d.Content == nil {
			continue
		}
		var data struct {
			Segments []struct {
				Text string `json:"text"`
			} `json:"segments"`
		}
		if err := json.Unmarshal([]byte(*d.Content), &data); err == nil && len(data.Segments) > 0 {
			var parts []string
			for _, seg := range data.Segments {
				parts = append(parts, seg.Text)
			}
			return strings.Join(parts, " ")
		}
		return *d.Content
	}
	return ""
}

// completedContent returns the content of a completed digest row by name
func completedContent(digests []*db.Digest, name string) string {
	for _, d := range digests {
		if d.Digester == name && d.Status == db.DigestStatusCompleted && d.Content != nil {
			return *d.Content
		}
	}
	return ""
}

func isPlainTextPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".txt")
}
