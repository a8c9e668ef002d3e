package vendors

import (
	"context"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/mnemo-app/mnemo/config"
	"github.com/mnemo-app/mnemo/log"
	"github.com/mnemo-app/mnemo/utils"
)

var (
	openaiClient     *OpenAIClient
	openaiClientOnce sync.Once
	openaiLogger     = log.GetLogger("openai")
)

// OpenAIClient wraps the OpenAI chat and embedding APIs
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// CompletionOptions holds options for completions
type CompletionOptions struct {
	SystemPrompt string
	Prompt       string
	Temperature  float32
	JSONMode     bool
}

// GetOpenAI returns the singleton OpenAI client. Returns nil when no API
// key is configured.
func GetOpenAI() *OpenAIClient {
	openaiClientOnce.Do(func() {
		cfg := config.Get()
		if cfg.OpenAIAPIKey == "" {
			openaiLogger.Warn().Msg("OPENAI_API_KEY not configured, OpenAI disabled")
			return
		}

		clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
		if cfg.OpenAIBaseURL != "" && cfg.OpenAIBaseURL != "https://api.openai.com/v1" {
			clientConfig.BaseURL = cfg.OpenAIBaseURL
		}

		openaiClient = &OpenAIClient{
			client: openai.NewClientWithConfig(clientConfig),
			model:  cfg.OpenAIModel,
		}

		openaiLogger.Info().Str("model", cfg.OpenAIModel).Msg("OpenAI initialized")
	})

	return openaiClient
}

// Complete performs a chat completion and returns the message content
func (o *OpenAIClient) Complete(ctx context.Context, opts CompletionOptions) (string, error) {
	var messages []openai.ChatCompletionMessage

	if opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: opts.Prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: opts.Temperature,
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		openaiLogger.Error().Err(err).Msg("completion failed")
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}

// Embed generates embeddings for a batch of texts
func (o *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.AdaEmbeddingV2,
		Input: texts,
	})
	if err != nil {
		openaiLogger.Error().Err(err).Msg("embedding failed")
		return nil, err
	}

	result := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		result[i] = item.Embedding
	}
	return result, nil
}

// Summarize generates a bullet-point summary of the text
func (o *OpenAIClient) Summarize(ctx context.Context, text string) (string, error) {
	return o.Complete(ctx, CompletionOptions{
		Prompt:      "Summarize the following text in 3-5 bullet points:\n\n" + text,
		Temperature: 0.7,
	})
}

// GenerateTags asks the model for classification tags
func (o *OpenAIClient) GenerateTags(ctx context.Context, text string) ([]string, error) {
	content, err := o.Complete(ctx, CompletionOptions{
		SystemPrompt: tagsSystemPrompt,
		Prompt:       "Analyze the following content and produce tags.\n\n" + text,
		Temperature:  0.1,
		JSONMode:     true,
	})
	if err != nil {
		return nil, err
	}

	parsed, err := utils.ParseJSONFromLLMResponse(content)
	if err != nil {
		openaiLogger.Error().Err(err).Str("content", content).Msg("failed to parse tags JSON")
		return []string{}, nil
	}

	return utils.ExtractTagsFromJSON(parsed, 20), nil
}

// GenerateSlug asks the model for a short filename-safe slug and title
func (o *OpenAIClient) GenerateSlug(ctx context.Context, text string) (string, error) {
	return o.Complete(ctx, CompletionOptions{
		SystemPrompt: slugSystemPrompt,
		Prompt:       text,
		Temperature:  0.1,
		JSONMode:     true,
	})
}
