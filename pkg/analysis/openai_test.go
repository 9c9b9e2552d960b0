package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIBackendValidation(t *testing.T) {
	_, err := NewOpenAIBackend("", "gpt-4", analysisTestLogger())
	assert.True(t, errors.IsValidationError(err))

	_, err = NewOpenAIBackend("sk-test", "", analysisTestLogger())
	assert.True(t, errors.IsValidationError(err))

	_, err = NewOpenAIBackend("sk-test", "gpt-4", nil)
	assert.True(t, errors.IsValidationError(err))
}

func TestOpenAIBackendAnalyze(t *testing.T) {
	type chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type chatRequest struct {
		Model          string        `json:"model"`
		Messages       []chatMessage `json:"messages"`
		Temperature    float64       `json:"temperature"`
		MaxTokens      int           `json:"max_tokens"`
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
	}

	var received chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-test",
			"object": "chat.completion",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "{\"summary\": \"Sustained memory pressure\", \"root_cause\": null, \"recommendations\": [\"Close browser tabs\"], \"severity\": \"warning\"}"
				},
				"finish_reason": "stop"
			}]
		}`))
	}))
	defer server.Close()

	backend, err := NewOpenAIBackendWithBaseURL("sk-test", "gpt-4", server.URL, analysisTestLogger())
	require.NoError(t, err)

	insight, err := backend.Analyze(context.Background(), testTrigger())
	require.NoError(t, err)

	assert.Equal(t, "Sustained memory pressure", insight.Summary)
	assert.Nil(t, insight.RootCause)
	assert.Equal(t, events.SeverityWarning, insight.Severity)

	assert.Equal(t, "gpt-4", received.Model)
	require.Len(t, received.Messages, 2)
	assert.Equal(t, "system", received.Messages[0].Role)
	assert.Contains(t, received.Messages[0].Content, "macOS system diagnostics expert")
	assert.Equal(t, "user", received.Messages[1].Role)
	assert.Contains(t, received.Messages[1].Content, "CrashDetectionRule")
	assert.InDelta(t, 0.1, received.Temperature, 0.001)
	assert.Equal(t, 1000, received.MaxTokens)
	assert.Equal(t, "json_object", received.ResponseFormat.Type)
}

func TestOpenAIBackendHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "Incorrect API key", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	backend, err := NewOpenAIBackendWithBaseURL("sk-bad", "gpt-4", server.URL, analysisTestLogger())
	require.NoError(t, err)

	_, err = backend.Analyze(context.Background(), testTrigger())
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))
}

func TestOpenAIBackendBadInsightJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "I am unable to analyze this."},
				"finish_reason": "stop"
			}]
		}`))
	}))
	defer server.Close()

	backend, err := NewOpenAIBackendWithBaseURL("sk-test", "gpt-4", server.URL, analysisTestLogger())
	require.NoError(t, err)

	_, err = backend.Analyze(context.Background(), testTrigger())
	require.Error(t, err)
	assert.True(t, errors.IsParseError(err))
}
