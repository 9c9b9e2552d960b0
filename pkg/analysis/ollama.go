package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/logging"
	"github.com/core-tools/macos-observer/pkg/triggers"
)

const (
	// requestTimeout bounds one model call end to end. Local inference on
	// a loaded machine can take tens of seconds.
	requestTimeout = 60 * time.Second

	// Low temperature keeps diagnostic output consistent between runs.
	analysisTemperature = 0.1
	analysisTopP        = 0.9
	analysisMaxTokens   = 1000
)

// OllamaBackend analyzes trigger contexts with a local Ollama server.
// Everything stays on the machine, which is the default posture for an
// agent that reads system logs.
type OllamaBackend struct {
	client   *http.Client
	endpoint string
	model    string
	logger   logging.Logger
}

// NewOllamaBackend creates a backend for the given server endpoint
// (e.g. http://localhost:11434) and model name.
func NewOllamaBackend(endpoint, model string, logger logging.Logger) (*OllamaBackend, error) {
	if endpoint == "" {
		return nil, errors.NewValidationError("endpoint cannot be empty", nil)
	}
	if model == "" {
		return nil, errors.NewValidationError("model cannot be empty", nil)
	}
	if logger == nil {
		return nil, errors.NewValidationError("logger cannot be nil", nil)
	}
	return &OllamaBackend{
		client:   &http.Client{Timeout: requestTimeout},
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		logger:   logger,
	}, nil
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Analyze posts the rendered prompt to /api/generate and parses the
// model's JSON reply.
func (b *OllamaBackend) Analyze(ctx context.Context, trigger *triggers.Context) (*Insight, error) {
	payload := ollamaRequest{
		Model:  b.model,
		Prompt: systemPrompt + "\n\n" + formatPrompt(trigger),
		Stream: false,
		Options: ollamaOptions{
			Temperature: analysisTemperature,
			TopP:        analysisTopP,
			NumPredict:  analysisMaxTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode ollama request", err)
	}

	url := b.endpoint + "/api/generate"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewInternalError("failed to build ollama request", err)
	}
	request.Header.Set("Content-Type", "application/json")

	b.logger.Debugf("Requesting ollama analysis, url: %s, model: %s", url, b.model)

	response, err := b.client.Do(request)
	if err != nil {
		return nil, errors.NewIOError("ollama request failed", err).WithContext("url", url)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, errors.NewIOError("failed to read ollama response", err)
	}

	if response.StatusCode != http.StatusOK {
		return nil, errors.NewInternalError("ollama returned an error status", nil).
			WithContext("status", response.StatusCode).
			WithContext("body", snippet(string(responseBody), 200))
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return nil, errors.NewParseError("failed to decode ollama response", err).
			WithContext("body", snippet(string(responseBody), 200))
	}
	if parsed.Error != "" {
		return nil, errors.NewInternalError("ollama reported an error", nil).
			WithContext("error", parsed.Error)
	}

	return parseInsight(parsed.Response)
}
