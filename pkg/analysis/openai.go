package analysis

import (
	"context"
	"net/http"
	"strings"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/logging"
	"github.com/core-tools/macos-observer/pkg/triggers"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend analyzes trigger contexts with the OpenAI chat completions
// API. The request pins the JSON response format, so replies skip the
// markdown-fence extraction path almost always.
type OpenAIBackend struct {
	client *openai.Client
	model  string
	logger logging.Logger
}

// NewOpenAIBackend creates a backend against api.openai.com.
func NewOpenAIBackend(apiKey, model string, logger logging.Logger) (*OpenAIBackend, error) {
	return NewOpenAIBackendWithBaseURL(apiKey, model, "", logger)
}

// NewOpenAIBackendWithBaseURL targets an OpenAI-compatible endpoint
// instead of the default; used for proxies and in tests.
func NewOpenAIBackendWithBaseURL(apiKey, model, baseURL string, logger logging.Logger) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, errors.NewValidationError("api key cannot be empty", nil)
	}
	if model == "" {
		return nil, errors.NewValidationError("model cannot be empty", nil)
	}
	if logger == nil {
		return nil, errors.NewValidationError("logger cannot be nil", nil)
	}

	config := openai.DefaultConfig(apiKey)
	config.HTTPClient = &http.Client{Timeout: requestTimeout}
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &OpenAIBackend{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger,
	}, nil
}

// Analyze sends the trigger context as a chat completion and parses the
// model's JSON reply.
func (b *OpenAIBackend) Analyze(ctx context.Context, trigger *triggers.Context) (*Insight, error) {
	request := openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: formatPrompt(trigger)},
		},
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	b.logger.Debugf("Requesting openai analysis, model: %s", b.model)

	response, err := b.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, errors.NewIOError("openai request failed", err).WithContext("model", b.model)
	}
	if len(response.Choices) == 0 {
		return nil, errors.NewParseError("openai response has no choices", nil)
	}

	return parseInsight(response.Choices[0].Message.Content)
}
