package vendors

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mnemo-app/mnemo/config"
	"github.com/mnemo-app/mnemo/log"
)

var (
	haidClient     *HAIDClient
	haidClientOnce sync.Once
	haidLogger     = log.GetLogger("haid")
)

// HAIDClient talks to the homelab AI gateway that performs crawling,
// conversion, OCR, and transcription
type HAIDClient struct {
	baseURL      string
	apiKey       string
	chromeCDPURL string
	httpClient   *http.Client
}

// CrawlOptions holds options for URL crawling
type CrawlOptions struct {
	Screenshot bool
	Timeout    int // seconds
}

// CrawlResponse represents a crawl response
type CrawlResponse struct {
	Title            string `json:"title"`
	Content          string `json:"content"`
	Markdown         string `json:"markdown"`
	Screenshot       string `json:"screenshot"`        // base64 (legacy field)
	ScreenshotBase64 string `json:"screenshot_base64"` // base64 (field the gateway actually sets)
	URL              string `json:"url"`
	Error            string `json:"error,omitempty"`
}

// ASRSegment represents a speech recognition segment
type ASRSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// ASRResponse represents a speech recognition response
type ASRResponse struct {
	Text     string       `json:"text"`
	Language string       `json:"language"`
	Segments []ASRSegment `json:"segments"`
	Error    string       `json:"error,omitempty"`
}

// OCRResponse represents an OCR response
type OCRResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// GetHAID returns the singleton HAID client. Returns nil when the gateway
// is not configured.
func GetHAID() *HAIDClient {
	haidClientOnce.Do(func() {
		cfg := config.Get()
		if cfg.HAIDBaseURL == "" {
			haidLogger.Warn().Msg("HAID_BASE_URL not configured, HAID disabled")
			return
		}

		haidClient = &HAIDClient{
			baseURL:      cfg.HAIDBaseURL,
			apiKey:       cfg.HAIDAPIKey,
			chromeCDPURL: cfg.HAIDChromeCDPURL,
			httpClient: &http.Client{
				Timeout: 5 * time.Minute, // ML operations are slow
			},
		}

		haidLogger.Info().Str("baseURL", cfg.HAIDBaseURL).Msg("HAID initialized")
	})

	return haidClient
}

// CrawlURL crawls a URL and returns the extracted content
func (h *HAIDClient) CrawlURL(ctx context.Context, target string, opts CrawlOptions) (*CrawlResponse, error) {
	if h == nil {
		return nil, fmt.Errorf("HAID not configured")
	}

	pageTimeout := 120000
	if opts.Timeout > 0 {
		pageTimeout = opts.Timeout * 1000
	}

	body := map[string]interface{}{
		"url":                 target,
		"screenshot":          opts.Screenshot,
		"screenshot_fullpage": false,
		"screenshot_width":    1920,
		"screenshot_height":   1080,
		"page_timeout":        pageTimeout,
	}
	if h.chromeCDPURL != "" {
		body["chrome_cdp_url"] = h.chromeCDPURL
	}

	resp, err := h.post(ctx, "/api/crawl", body)
	if err != nil {
		return nil, err
	}

	var result CrawlResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to decode crawl response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("crawl failed: %s", result.Error)
	}

	// Prefer screenshot_base64, the field the gateway actually sets
	if result.ScreenshotBase64 != "" && result.Screenshot == "" {
		result.Screenshot = result.ScreenshotBase64
	}

	return &result, nil
}

// ScreenshotBytes decodes the base64 screenshot, returning nil when absent
func (r *CrawlResponse) ScreenshotBytes() []byte {
	if r.Screenshot == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(r.Screenshot)
	if err != nil {
		return nil
	}
	return data
}

// ConvertDocToMarkdown converts a document to markdown
func (h *HAIDClient) ConvertDocToMarkdown(ctx context.Context, docPath string) (string, error) {
	if h == nil {
		return "", fmt.Errorf("HAID not configured")
	}

	docData, err := os.ReadFile(resolveFilePath(docPath))
	if err != nil {
		return "", err
	}

	body := map[string]interface{}{
		"file":     base64.StdEncoding.EncodeToString(docData),
		"filename": filepath.Base(docPath),
		"lib":      "microsoft/markitdown",
	}

	resp, err := h.post(ctx, "/api/doc-to-markdown", body)
	if err != nil {
		return "", err
	}

	var result struct {
		Markdown string `json:"markdown"`
		Error    string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("failed to decode conversion response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("conversion failed: %s", result.Error)
	}

	return result.Markdown, nil
}

// GenerateDocScreenshot renders the first page of a document as an image
func (h *HAIDClient) GenerateDocScreenshot(ctx context.Context, docPath string) ([]byte, error) {
	if h == nil {
		return nil, fmt.Errorf("HAID not configured")
	}

	docData, err := os.ReadFile(resolveFilePath(docPath))
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"document": base64.StdEncoding.EncodeToString(docData),
	}

	resp, err := h.post(ctx, "/api/doc-to-screenshot", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Screenshot string `json:"screenshot"`
		Error      string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to decode screenshot response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("screenshot failed: %s", result.Error)
	}

	return base64.StdEncoding.DecodeString(result.Screenshot)
}

// OCRImage extracts text from an image
func (h *HAIDClient) OCRImage(ctx context.Context, imagePath string) (string, error) {
	if h == nil {
		return "", fmt.Errorf("HAID not configured")
	}

	imageData, err := os.ReadFile(resolveFilePath(imagePath))
	if err != nil {
		return "", err
	}

	body := map[string]interface{}{
		"image":         base64.StdEncoding.EncodeToString(imageData),
		"model":         "deepseek-ai/DeepSeek-OCR",
		"output_format": "text",
	}

	resp, err := h.post(ctx, "/api/image-ocr", body)
	if err != nil {
		return "", err
	}

	var result OCRResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("failed to decode OCR response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("OCR failed: %s", result.Error)
	}

	return result.Text, nil
}

// TranscribeAudio transcribes an audio or video file
func (h *HAIDClient) TranscribeAudio(ctx context.Context, audioPath string) (*ASRResponse, error) {
	if h == nil {
		return nil, fmt.Errorf("HAID not configured")
	}

	audioData, err := os.ReadFile(resolveFilePath(audioPath))
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"audio": base64.StdEncoding.EncodeToString(audioData),
		"model": "large-v3",
		"lib":   "whisperx",
	}

	resp, err := h.post(ctx, "/api/automatic-speech-recognition", body)
	if err != nil {
		return nil, err
	}

	var result ASRResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to decode transcription response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("transcription failed: %s", result.Error)
	}

	return &result, nil
}

// post makes a POST request to the gateway
func (h *HAIDClient) post(ctx context.Context, endpoint string, body map[string]interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	fullURL, err := url.JoinPath(h.baseURL, endpoint)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("haid %s returned %d: %s", endpoint, resp.StatusCode, string(data))
	}
	return data, nil
}

// resolveFilePath converts a catalog-relative path to an absolute one
func resolveFilePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(config.Get().DataDir, path)
}
