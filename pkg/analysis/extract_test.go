package analysis

import (
	"testing"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name: "json fence",
			input: "Here's the analysis:\n\n```json\n" +
				`{"summary": "High CPU usage"}` + "\n```\n\nThat's my analysis.",
			expected: `{"summary": "High CPU usage"}`,
		},
		{
			name:     "bare fence holding an object",
			input:    "Analysis result:\n```\n{\"summary\": \"Memory issue\"}\n```",
			expected: `{"summary": "Memory issue"}`,
		},
		{
			name:     "object surrounded by chatter",
			input:    `Sure! {"summary": "Disk churn"} Hope that helps.`,
			expected: `{"summary": "Disk churn"}`,
		},
		{
			name:     "clean object passes through",
			input:    `{"summary": "ok"}`,
			expected: `{"summary": "ok"}`,
		},
		{
			name:     "no json at all returns the text",
			input:    "I could not produce a diagnosis.",
			expected: "I could not produce a diagnosis.",
		},
		{
			name:     "fence without object falls back to brace scan",
			input:    "```\nnot json\n```\nbut later {\"summary\": \"found\"} appears",
			expected: `{"summary": "found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSON(tt.input))
		})
	}
}

func TestParseInsight(t *testing.T) {
	text := "```json\n" + `{
		"summary": "Repeated kernel extension faults",
		"root_cause": "Third-party kext crashing under memory pressure",
		"recommendations": ["Update the extension", "Check Console for crash logs"],
		"severity": "critical"
	}` + "\n```"

	insight, err := parseInsight(text)
	require.NoError(t, err)

	assert.Equal(t, "Repeated kernel extension faults", insight.Summary)
	require.NotNil(t, insight.RootCause)
	assert.Equal(t, "Third-party kext crashing under memory pressure", *insight.RootCause)
	assert.Len(t, insight.Recommendations, 2)
	assert.Equal(t, events.SeverityCritical, insight.Severity)
	assert.False(t, insight.Timestamp.IsZero())
}

func TestParseInsightNullRootCause(t *testing.T) {
	insight, err := parseInsight(`{"summary": "All clear", "root_cause": null, "recommendations": [], "severity": "info"}`)
	require.NoError(t, err)

	assert.Nil(t, insight.RootCause)
	assert.Empty(t, insight.Recommendations)
	assert.Equal(t, events.SeverityInfo, insight.Severity)
}

func TestParseInsightUnknownSeverityIsInfo(t *testing.T) {
	insight, err := parseInsight(`{"summary": "odd", "severity": "catastrophic"}`)
	require.NoError(t, err)
	assert.Equal(t, events.SeverityInfo, insight.Severity)
}

func TestParseInsightRejectsNonJSON(t *testing.T) {
	_, err := parseInsight("The system looks fine to me.")
	require.Error(t, err)
	assert.True(t, errors.IsParseError(err))
}

func TestParseInsightRejectsMissingSummary(t *testing.T) {
	_, err := parseInsight(`{"root_cause": "something", "severity": "warning"}`)
	require.Error(t, err)
	assert.True(t, errors.IsParseError(err))
}
