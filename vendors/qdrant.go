package vendors

import (
	"context"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/mnemo-app/mnemo/config"
	"github.com/mnemo-app/mnemo/log"
)

var (
	qdrantClient     *QdrantClient
	qdrantClientOnce sync.Once
	qdrantLogger     = log.GetLogger("qdrant")
)

// QdrantClient wraps the Qdrant vector database client
type QdrantClient struct {
	client     *qdrant.Client
	collection string
}

// QdrantSearchOptions holds search options
type QdrantSearchOptions struct {
	Limit          int
	ScoreThreshold float32
	PathFilter     string
}

// QdrantSearchResult represents a vector search hit
type QdrantSearchResult struct {
	ID         string
	Score      float32
	FilePath   string
	Text       string
	SourceType string
}

// GetQdrant returns the singleton Qdrant client. Returns nil when the host
// is not configured or the collection cannot be prepared.
func GetQdrant() *QdrantClient {
	qdrantClientOnce.Do(func() {
		cfg := config.Get()
		if cfg.QdrantHost == "" {
			qdrantLogger.Warn().Msg("QDRANT_HOST not configured, Qdrant disabled")
			return
		}

		host := strings.TrimSuffix(cfg.QdrantHost, "/")
		client, err := qdrant.NewClient(&qdrant.Config{
			Host:   host,
			APIKey: cfg.QdrantAPIKey,
		})
		if err != nil {
			qdrantLogger.Error().Err(err).Msg("failed to create Qdrant client")
			return
		}

		ctx := context.Background()
		exists, err := client.CollectionExists(ctx, cfg.QdrantCollection)
		if err != nil {
			qdrantLogger.Error().Err(err).Msg("failed to check collection")
			return
		}

		if !exists {
			err = client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: cfg.QdrantCollection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     1536, // OpenAI ada-002 dimension
					Distance: qdrant.Distance_Cosine,
				}),
			})
			if err != nil {
				qdrantLogger.Error().Err(err).Msg("failed to create collection")
				return
			}
			qdrantLogger.Info().Str("collection", cfg.QdrantCollection).Msg("created Qdrant collection")
		}

		qdrantClient = &QdrantClient{
			client:     client,
			collection: cfg.QdrantCollection,
		}

		qdrantLogger.Info().Str("host", host).Str("collection", cfg.QdrantCollection).Msg("Qdrant initialized")
	})

	return qdrantClient
}

// Upsert adds or updates a point
func (q *QdrantClient) Upsert(ctx context.Context, id string, vector []float32, payload map[string]interface{}) error {
	qdrantPayload := make(map[string]*qdrant.Value)
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			qdrantPayload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case int:
			qdrantPayload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
		case float64:
			qdrantPayload[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(id),
				Vectors: qdrant.NewVectorsDense(vector),
				Payload: qdrantPayload,
			},
		},
	})
	return err
}

// Delete removes a point
func (q *QdrantClient) Delete(ctx context.Context, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{qdrant.NewIDUUID(id)},
				},
			},
		},
	})
	return err
}

// DeleteByPath removes every point belonging to a file
func (q *QdrantClient) DeleteByPath(ctx context.Context, filePath string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						{
							ConditionOneOf: &qdrant.Condition_Field{
								Field: &qdrant.FieldCondition{
									Key: "filePath",
									Match: &qdrant.Match{
										MatchValue: &qdrant.Match_Text{Text: filePath},
									},
								},
							},
						},
					},
				},
			},
		},
	})
	return err
}

// Search performs a vector search
func (q *QdrantClient) Search(ctx context.Context, vector []float32, opts QdrantSearchOptions) ([]QdrantSearchResult, error) {
	var filter *qdrant.Filter
	if opts.PathFilter != "" {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				{
					ConditionOneOf: &qdrant.Condition_Field{
						Field: &qdrant.FieldCondition{
							Key: "filePath",
							Match: &qdrant.Match{
								MatchValue: &qdrant.Match_Text{Text: opts.PathFilter},
							},
						},
					},
				},
			},
		}
	}

	limit := uint64(opts.Limit)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          &limit,
		ScoreThreshold: &opts.ScoreThreshold,
		WithPayload:    qdrant.NewWithPayloadInclude("filePath", "text", "sourceType"),
		Filter:         filter,
	})
	if err != nil {
		return nil, err
	}

	var results []QdrantSearchResult
	for _, point := range points {
		result := QdrantSearchResult{
			ID:    point.Id.GetUuid(),
			Score: point.Score,
		}
		if payload := point.Payload; payload != nil {
			if v, ok := payload["filePath"]; ok {
				result.FilePath = v.GetStringValue()
			}
			if v, ok := payload["text"]; ok {
				result.Text = v.GetStringValue()
			}
			if v, ok := payload["sourceType"]; ok {
				result.SourceType = v.GetStringValue()
			}
		}
		results = append(results, result)
	}

	return results, nil
}
