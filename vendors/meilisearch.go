package vendors

import (
	"sync"

	"github.com/meilisearch/meilisearch-go"

	"github.com/mnemo-app/mnemo/config"
	"github.com/mnemo-app/mnemo/log"
)

var (
	meiliClient     *MeiliClient
	meiliClientOnce sync.Once
	meiliLogger     = log.GetLogger("meilisearch")
)

// MeiliClient wraps the Meilisearch client for keyword search
type MeiliClient struct {
	client   meilisearch.ServiceManager
	index    meilisearch.IndexManager
	indexUID string
}

// MeiliSearchOptions holds search options
type MeiliSearchOptions struct {
	Limit      int
	Offset     int
	TypeFilter string
	PathFilter string
}

// MeiliHit represents a single search hit
type MeiliHit struct {
	DocumentID string
	FilePath   string
	MimeType   string
	Content    string
	Summary    string
	Tags       string
	Formatted  map[string]string
}

// MeiliSearchResult represents a search result page
type MeiliSearchResult struct {
	Hits               []MeiliHit
	EstimatedTotalHits int
	Limit              int
	Offset             int
	Query              string
}

// GetMeili returns the singleton Meilisearch client. Returns nil when the
// host is not configured or unreachable.
func GetMeili() *MeiliClient {
	meiliClientOnce.Do(func() {
		cfg := config.Get()
		if cfg.MeiliHost == "" {
			meiliLogger.Warn().Msg("MEILI_HOST not configured, Meilisearch disabled")
			return
		}

		client := meilisearch.New(cfg.MeiliHost, meilisearch.WithAPIKey(cfg.MeiliAPIKey))
		if _, err := client.Health(); err != nil {
			meiliLogger.Error().Err(err).Msg("failed to connect to Meilisearch")
			return
		}

		meiliClient = &MeiliClient{
			client:   client,
			index:    client.Index(cfg.MeiliIndex),
			indexUID: cfg.MeiliIndex,
		}

		meiliLogger.Info().Str("host", cfg.MeiliHost).Str("index", cfg.MeiliIndex).Msg("Meilisearch initialized")
	})

	return meiliClient
}

// IndexDocument adds or replaces a document keyed by documentId
func (m *MeiliClient) IndexDocument(doc map[string]interface{}) error {
	_, err := m.index.AddDocuments([]map[string]interface{}{doc}, "documentId")
	return err
}

// DeleteDocument removes a document
func (m *MeiliClient) DeleteDocument(documentID string) error {
	_, err := m.index.DeleteDocument(documentID)
	return err
}

// Search performs a keyword search
func (m *MeiliClient) Search(query string, opts MeiliSearchOptions) (*MeiliSearchResult, error) {
	var filters []string
	if opts.TypeFilter != "" {
		filters = append(filters, "mimeType STARTS WITH \""+escapeFilter(opts.TypeFilter)+"\"")
	}
	if opts.PathFilter != "" {
		filters = append(filters, "filePath STARTS WITH \""+escapeFilter(opts.PathFilter)+"\"")
	}

	filter := ""
	if len(filters) > 0 {
		filter = filters[0]
		for _, f := range filters[1:] {
			filter += " AND " + f
		}
	}

	searchReq := &meilisearch.SearchRequest{
		Limit:                 int64(opts.Limit),
		Offset:                int64(opts.Offset),
		AttributesToHighlight: []string{"content", "summary", "tags", "filePath"},
		AttributesToCrop:      []string{"content"},
		CropLength:            200,
		MatchingStrategy:      "all",
	}
	if filter != "" {
		searchReq.Filter = filter
	}

	resp, err := m.index.Search(query, searchReq)
	if err != nil {
		return nil, err
	}

	result := &MeiliSearchResult{
		EstimatedTotalHits: int(resp.EstimatedTotalHits),
		Limit:              opts.Limit,
		Offset:             opts.Offset,
		Query:              query,
	}

	for _, hit := range resp.Hits {
		h, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}

		meiliHit := MeiliHit{
			DocumentID: getString(h, "documentId"),
			FilePath:   getString(h, "filePath"),
			MimeType:   getString(h, "mimeType"),
			Content:    getString(h, "content"),
			Summary:    getString(h, "summary"),
			Tags:       getString(h, "tags"),
		}

		if formatted, ok := h["_formatted"].(map[string]interface{}); ok {
			meiliHit.Formatted = make(map[string]string)
			for k, v := range formatted {
				if s, ok := v.(string); ok {
					meiliHit.Formatted[k] = s
				}
			}
		}

		result.Hits = append(result.Hits, meiliHit)
	}

	return result, nil
}

func escapeFilter(value string) string {
	result := ""
	for _, c := range value {
		switch c {
		case '\\':
			result += "\\\\"
		case '"':
			result += "\\\""
		default:
			result += string(c)
		}
	}
	return result
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
