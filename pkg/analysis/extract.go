package analysis

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/events"
)

// insightPayload is the JSON shape the model is instructed to produce.
type insightPayload struct {
	Summary         string   `json:"summary"`
	RootCause       *string  `json:"root_cause"`
	Recommendations []string `json:"recommendations"`
	Severity        string   `json:"severity"`
}

// parseInsight turns raw model output into an Insight. Models wrap their
// JSON in markdown fences or chatter around it often enough that the text
// goes through extraction first.
func parseInsight(text string) (*Insight, error) {
	jsonText := extractJSON(text)

	var payload insightPayload
	if err := json.Unmarshal([]byte(jsonText), &payload); err != nil {
		return nil, errors.NewParseError("model response is not the expected JSON", err).
			WithContext("response", snippet(jsonText, 200))
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return nil, errors.NewParseError("model response has no summary", nil).
			WithContext("response", snippet(jsonText, 200))
	}

	return &Insight{
		Timestamp:       time.Now().UTC(),
		Summary:         payload.Summary,
		RootCause:       payload.RootCause,
		Recommendations: payload.Recommendations,
		Severity:        events.ParseSeverity(payload.Severity),
	}, nil
}

// extractJSON pulls the JSON object out of model output. Preference order:
// a ```json fence, a bare ``` fence holding an object, the outermost brace
// pair, then the raw text so the caller surfaces the parse failure.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "```json"); start >= 0 {
		rest := text[start+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			if candidate := strings.TrimSpace(rest[:end]); candidate != "" {
				return candidate
			}
		}
	}

	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+len("```"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(candidate, "{") && strings.HasSuffix(candidate, "}") {
				return candidate
			}
		}
	}

	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			return text[start : end+1]
		}
	}

	return text
}

// snippet bounds text included in error context
func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
