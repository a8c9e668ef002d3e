package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mnemo-app/mnemo/db"
	"github.com/mnemo-app/mnemo/utils"
	"github.com/mnemo-app/mnemo/vendors"
)

func mimeOf(file *db.FileRecord) string {
	if file.MimeType != nil {
		return *file.MimeType
	}
	return ""
}

// previewURL returns the URL held in the file's text preview, or ""
func previewURL(file *db.FileRecord) string {
	if file.TextPreview == nil {
		return ""
	}
	s := strings.TrimSpace(*file.TextPreview)
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return ""
}

func completed(digester string, content string) Output {
	return Output{Digester: digester, Status: StatusCompleted, Content: &content}
}

// URLCrawlDigester crawls bookmarked URLs and captures a page screenshot

type URLCrawlDigester struct{}

func (d *URLCrawlDigester) Name() string        { return "url-crawl" }
func (d *URLCrawlDigester) Label() string       { return "URL Crawler" }
func (d *URLCrawlDigester) Description() string { return "Crawl and extract content from URLs" }
func (d *URLCrawlDigester) Outputs() []string {
	return []string{"url-crawl-content", "url-crawl-screenshot"}
}

func (d *URLCrawlDigester) Applies(_ context.Context, file *db.FileRecord, _ []*db.Digest) (bool, error) {
	// Any text file whose content is a bare URL is a bookmark
	return previewURL(file) != "", nil
}

func (d *URLCrawlDigester) Run(ctx context.Context, file *db.FileRecord, _ []*db.Digest) ([]Output, error) {
	target := previewURL(file)
	if target == "" {
		return nil, nil
	}

	haid := vendors.GetHAID()
	if haid == nil {
		return nil, fmt.Errorf("HAID not configured")
	}

	crawl, err := haid.CrawlURL(ctx, target, vendors.CrawlOptions{Screenshot: true, Timeout: 30})
	if err != nil {
		return nil, err
	}

	markdown := crawl.Markdown
	if markdown == "" {
		markdown = crawl.Content
	}

	wordCount := countWords(markdown)
	readingTimeMinutes := 1
	if wordCount > 0 {
		readingTimeMinutes = (wordCount + 199) / 200 // 200 wpm, round up
	}

	domain := ""
	if parsed, err := url.Parse(crawl.URL); err == nil {
		domain = parsed.Hostname()
	}

	contentJSON, _ := json.Marshal(map[string]interface{}{
		"markdown":           markdown,
		"url":                crawl.URL,
		"title":              crawl.Title,
		"domain":             domain,
		"wordCount":          wordCount,
		"readingTimeMinutes": readingTimeMinutes,
	})

	outputs := []Output{completed("url-crawl-content", string(contentJSON))}

	if shot := crawl.ScreenshotBytes(); len(shot) > 0 {
		name := "screenshot.png"
		outputs = append(outputs, Output{
			Digester:   "url-crawl-screenshot",
			Status:     StatusCompleted,
			BlobName:   &name,
			BlobData:   shot,
			Screenshot: true,
		})
	}

	return outputs, nil
}

// DocToMarkdownDigester converts office documents and PDFs to markdown

type DocToMarkdownDigester struct{}

func (d *DocToMarkdownDigester) Name() string        { return "doc-to-markdown" }
func (d *DocToMarkdownDigester) Label() string       { return "Document Converter" }
func (d *DocToMarkdownDigester) Description() string { return "Convert documents to markdown" }
func (d *DocToMarkdownDigester) Outputs() []string   { return nil }

func (d *DocToMarkdownDigester) Applies(_ context.Context, file *db.FileRecord, _ []*db.Digest) (bool, error) {
	return utils.IsDocumentMime(mimeOf(file)), nil
}

func (d *DocToMarkdownDigester) Run(ctx context.Context, file *db.FileRecord, _ []*db.Digest) ([]Output, error) {
	haid := vendors.GetHAID()
	if haid == nil {
		return nil, fmt.Errorf("HAID not configured")
	}

	markdown, err := haid.ConvertDocToMarkdown(ctx, file.Path)
	if err != nil {
		return nil, err
	}
	if markdown == "" {
		return nil, nil
	}

	return []Output{completed("doc-to-markdown", markdown)}, nil
}

// DocToScreenshotDigester renders a document's first page as its preview

type DocToScreenshotDigester struct{}

func (d *DocToScreenshotDigester) Name() string        { return "doc-to-screenshot" }
func (d *DocToScreenshotDigester) Label() string       { return "Document Screenshot" }
func (d *DocToScreenshotDigester) Description() string { return "Render the first page of a document" }
func (d *DocToScreenshotDigester) Outputs() []string   { return nil }

func (d *DocToScreenshotDigester) Applies(_ context.Context, file *db.FileRecord, _ []*db.Digest) (bool, error) {
	return utils.IsDocumentMime(mimeOf(file)), nil
}

func (d *DocToScreenshotDigester) Run(ctx context.Context, file *db.FileRecord, _ []*db.Digest) ([]Output, error) {
	haid := vendors.GetHAID()
	if haid == nil {
		return nil, fmt.Errorf("HAID not configured")
	}

	shot, err := haid.GenerateDocScreenshot(ctx, file.Path)
	if err != nil {
		return nil, err
	}
	if len(shot) == 0 {
		return nil, nil
	}

	name := "screenshot.png"
	return []Output{{
		Digester:   "doc-to-screenshot",
		Status:     StatusCompleted,
		BlobName:   &name,
		BlobData:   shot,
		Screenshot: true,
	}}, nil
}

// ImageOCRDigester extracts text from images

type ImageOCRDigester struct{}

func (d *ImageOCRDigester) Name() string        { return "image-ocr" }
func (d *ImageOCRDigester) Label() string       { return "Image OCR" }
func (d *ImageOCRDigester) Description() string { return "Extract text from images" }
func (d *ImageOCRDigester) Outputs() []string   { return nil }

func (d *ImageOCRDigester) Applies(_ context.Context, file *db.FileRecord, _ []*db.Digest) (bool, error) {
	return utils.IsImageMime(mimeOf(file)), nil
}

func (d *ImageOCRDigester) Run(ctx context.Context, file *db.FileRecord, _ []*db.Digest) ([]Output, error) {
	haid := vendors.GetHAID()
	if haid == nil {
		return nil, fmt.Errorf("HAID not configured")
	}

	text, err := haid.OCRImage(ctx, file.Path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	return []Output{completed("image-ocr", text)}, nil
}

// SpeechRecognitionDigester transcribes audio and video files

type SpeechRecognitionDigester struct{}

func (d *SpeechRecognitionDigester) Name() string        { return "speech-recognition" }
func (d *SpeechRecognitionDigester) Label() string       { return "Speech Recognition" }
func (d *SpeechRecognitionDigester) Description() string { return "Transcribe audio and video to text" }
func (d *SpeechRecognitionDigester) Outputs() []string   { return nil }

func (d *SpeechRecognitionDigester) Applies(_ context.Context, file *db.FileRecord, _ []*db.Digest) (bool, error) {
	mime := mimeOf(file)
	return utils.IsAudioMime(mime) || utils.IsVideoMime(mime), nil
}

func (d *SpeechRecognitionDigester) Run(ctx context.Context, file *db.FileRecord, _ []*db.Digest) ([]Output, error) {
	haid := vendors.GetHAID()
	if haid == nil {
		return nil, fmt.Errorf("HAID not configured")
	}

	asr, err := haid.TranscribeAudio(ctx, file.Path)
	if err != nil {
		return nil, err
	}
	if asr == nil || strings.TrimSpace(asr.Text) == "" {
		return nil, nil
	}

	contentJSON, _ := json.Marshal(map[string]interface{}{
		"text":     asr.Text,
		"language": asr.Language,
		"segments": asr.Segments,
	})
	return []Output{completed("speech-recognition", string(contentJSON))}, nil
}

// URLCrawlSummaryDigester summarizes crawled page content

type URLCrawlSummaryDigester struct{}

func (d *URLCrawlSummaryDigester) Name() string        { return "url-crawl-summary" }
func (d *URLCrawlSummaryDigester) Label() string       { return "URL Summary" }
func (d *URLCrawlSummaryDigester) Description() string { return "Summarize crawled URL content" }
func (d *URLCrawlSummaryDigester) Outputs() []string   { return nil }

func (d *URLCrawlSummaryDigester) Applies(_ context.Context, _ *db.FileRecord, digests []*db.Digest) (bool, error) {
	return len([]rune(crawlMarkdown(digests))) >= 100, nil
}

func (d *URLCrawlSummaryDigester) Run(ctx context.Context, file *db.FileRecord, digests []*db.Digest) ([]Output, error) {
	markdown := crawlMarkdown(digests)
	if markdown == "" {
		return nil, nil
	}

	openai := vendors.GetOpenAI()
	if openai == nil {
		return nil, fmt.Errorf("OpenAI not configured")
	}

	summary, err := openai.Summarize(ctx, markdown)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(summary) == "" {
		return nil, nil
	}

	contentJSON, _ := json.Marshal(map[string]string{"summary": summary})
	return []Output{completed("url-crawl-summary", string(contentJSON))}, nil
}

// TagsDigester generates classification tags from any available text

type TagsDigester struct{}

func (d *TagsDigester) Name() string        { return "tags" }
func (d *TagsDigester) Label() string       { return "Tags" }
func (d *TagsDigester) Description() string { return "Generate classification tags" }
func (d *TagsDigester) Outputs() []string   { return nil }

func (d *TagsDigester) Applies(_ context.Context, file *db.FileRecord, digests []*db.Digest) (bool, error) {
	return !file.IsFolder && HasTextSource(file, digests, 10), nil
}

func (d *TagsDigester) Run(ctx context.Context, file *db.FileRecord, digests []*db.Digest) ([]Output, error) {
	text := CombinedText(file, digests)
	if text == "" {
		return nil, nil
	}

	openai := vendors.GetOpenAI()
	if openai == nil {
		return nil, fmt.Errorf("OpenAI not configured")
	}

	tags, err := openai.GenerateTags(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, nil
	}

	contentJSON, _ := json.Marshal(map[string]interface{}{"tags": tags})
	return []Output{completed("tags", string(contentJSON))}, nil
}

// SlugDigester names files with a short descriptive slug

type SlugDigester struct{}

func (d *SlugDigester) Name() string        { return "slug" }
func (d *SlugDigester) Label() string       { return "Slug" }
func (d *SlugDigester) Description() string { return "Generate a descriptive slug and title" }
func (d *SlugDigester) Outputs() []string   { return nil }

func (d *SlugDigester) Applies(_ context.Context, file *db.FileRecord, digests []*db.Digest) (bool, error) {
	if file.IsFolder {
		return false, nil
	}
	text, _ := slugSource(file, digests)
	return text != "", nil
}

// slugSource picks the text the slug is generated from. The summary wins
// when present; otherwise the first content source of real length.
func slugSource(file *db.FileRecord, digests []*db.Digest) (text, sourceType string) {
	if summary := SummaryText(digests); summary != nil && strings.TrimSpace(*summary) != "" {
		return *summary, "summary"
	}
	for _, s := range ResolveContentSources(file, digests) {
		if len([]rune(s.Text)) >= 20 {
			return s.Text, s.SourceType
		}
	}
	return "", ""
}

func (d *SlugDigester) Run(ctx context.Context, file *db.FileRecord, digests []*db.Digest) ([]Output, error) {
	text, sourceType := slugSource(file, digests)
	if text == "" {
		return nil, nil
	}

	openai := vendors.GetOpenAI()
	if openai == nil {
		return nil, fmt.Errorf("OpenAI not configured")
	}

	raw, err := openai.GenerateSlug(ctx, text)
	if err != nil {
		return nil, err
	}

	parsed, err := utils.ParseJSONFromLLMResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse slug response: %w", err)
	}

	slug := ""
	title := ""
	if m, ok := parsed.(map[string]interface{}); ok {
		if s, ok := m["slug"].(string); ok {
			slug = normalizeSlug(s)
		}
		if t, ok := m["title"].(string); ok {
			title = strings.TrimSpace(t)
		}
	}
	if slug == "" {
		return nil, nil
	}

	contentJSON, _ := json.Marshal(map[string]string{
		"slug":   slug,
		"title":  title,
		"source": sourceType,
	})
	return []Output{completed("slug", string(contentJSON))}, nil
}

// normalizeSlug lowercases and hyphenates a model-produced slug
func normalizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastHyphen := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// SearchKeywordDigester builds the keyword search document and schedules
// its push to Meilisearch

type SearchKeywordDigester struct{}

func (d *SearchKeywordDigester) Name() string        { return "search-keyword" }
func (d *SearchKeywordDigester) Label() string       { return "Keyword Search" }
func (d *SearchKeywordDigester) Description() string { return "Index content for keyword search" }
func (d *SearchKeywordDigester) Outputs() []string   { return nil }

func (d *SearchKeywordDigester) Applies(_ context.Context, file *db.FileRecord, _ []*db.Digest) (bool, error) {
	return !file.IsFolder, nil
}

func (d *SearchKeywordDigester) Run(_ context.Context, file *db.FileRecord, digests []*db.Digest) ([]Output, error) {
	text := CombinedText(file, digests)
	summary := SummaryText(digests)
	tags := TagsText(digests)

	if text == "" && summary == nil && tags == nil {
		return nil, nil
	}

	allText := text
	if summary != nil {
		allText += " " + *summary
	}
	if tags != nil {
		allText += " " + *tags
	}

	doc := &db.MeiliDocument{
		FilePath:    file.Path,
		Content:     text,
		Summary:     summary,
		Tags:        tags,
		ContentHash: hashString(allText),
		WordCount:   countWords(text),
		MimeType:    file.MimeType,
	}
	if err := db.UpsertMeiliDocument(doc); err != nil {
		return nil, err
	}

	taskID := enqueueIndexTask(TaskKeywordIndex, file.Path)

	sources := ResolveContentSources(file, digests)
	sourceTypes := make([]string, 0, len(sources))
	for _, s := range sources {
		sourceTypes = append(sourceTypes, s.SourceType)
	}

	metadataJSON, _ := json.Marshal(map[string]interface{}{
		"documentId":     doc.DocumentID,
		"taskId":         taskID,
		"hasContent":     text != "",
		"contentSources": sourceTypes,
		"hasSummary":     summary != nil,
		"hasTags":        tags != nil,
	})
	return []Output{completed("search-keyword", string(metadataJSON))}, nil
}

// SearchSemanticDigester chunks text sources and schedules their
// embedding push to Qdrant

type SearchSemanticDigester struct{}

func (d *SearchSemanticDigester) Name() string        { return "search-semantic" }
func (d *SearchSemanticDigester) Label() string       { return "Semantic Search" }
func (d *SearchSemanticDigester) Description() string { return "Index content for semantic search" }
func (d *SearchSemanticDigester) Outputs() []string   { return nil }

func (d *SearchSemanticDigester) Applies(_ context.Context, file *db.FileRecord, _ []*db.Digest) (bool, error) {
	return !file.IsFolder, nil
}

func (d *SearchSemanticDigester) Run(_ context.Context, file *db.FileRecord, digests []*db.Digest) ([]Output, error) {
	sources := ResolveContentSources(file, digests)

	// Summary and tags are indexed as their own sources
	if summary := SummaryText(digests); summary != nil && *summary != "" {
		sources = append(sources, ContentSource{SourceType: "summary", Text: *summary})
	}
	if tags := TagsText(digests); tags != nil && *tags != "" {
		sources = append(sources, ContentSource{SourceType: "tags", Text: *tags})
	}

	if len(sources) == 0 {
		return nil, nil
	}

	var chunks []*db.QdrantDocument
	sourceCounts := make(map[string]int)
	for _, source := range sources {
		if source.Text == "" {
			continue
		}
		for _, chunk := range ChunkText(source.Text, 900, 0.15) {
			chunks = append(chunks, &db.QdrantDocument{
				FilePath:      file.Path,
				SourceType:    source.SourceType,
				ChunkIndex:    chunk.ChunkIndex,
				ChunkCount:    chunk.ChunkCount,
				ChunkText:     chunk.ChunkText,
				SpanStart:     chunk.SpanStart,
				SpanEnd:       chunk.SpanEnd,
				OverlapTokens: chunk.OverlapTokens,
				WordCount:     chunk.WordCount,
				TokenCount:    chunk.TokenCount,
				ContentHash:   hashString(chunk.ChunkText),
			})
			sourceCounts[source.SourceType]++
		}
	}

	if len(chunks) == 0 {
		return nil, nil
	}

	if err := db.ReplaceQdrantChunks(file.Path, chunks); err != nil {
		return nil, err
	}

	taskID := enqueueIndexTask(TaskSemanticIndex, file.Path)

	metadataJSON, _ := json.Marshal(map[string]interface{}{
		"taskId":      taskID,
		"sources":     sourceCounts,
		"totalChunks": len(chunks),
	})
	return []Output{completed("search-semantic", string(metadataJSON))}, nil
}
