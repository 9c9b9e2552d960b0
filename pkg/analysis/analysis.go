package analysis

import (
	"context"
	"time"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/events"
	"github.com/core-tools/macos-observer/pkg/logging"
	"github.com/core-tools/macos-observer/pkg/triggers"
)

// Insight is the structured result of one AI analysis pass over a trigger
// context.
type Insight struct {
	Timestamp       time.Time       `json:"timestamp"`
	Summary         string          `json:"summary"`
	RootCause       *string         `json:"root_cause"`
	Recommendations []string        `json:"recommendations"`
	Severity        events.Severity `json:"severity"`
}

// Backend produces an insight for a trigger context. Implementations talk
// to a model service; the mock backend returns canned responses.
type Backend interface {
	Analyze(ctx context.Context, trigger *triggers.Context) (*Insight, error)
}

// Analyzer fronts a backend for the analysis loop. It owns input
// validation and outcome logging so backends stay focused on their wire
// protocol.
type Analyzer struct {
	backend Backend
	logger  logging.Logger
}

// NewAnalyzer creates an analyzer over the given backend.
func NewAnalyzer(backend Backend, logger logging.Logger) (*Analyzer, error) {
	if backend == nil {
		return nil, errors.NewValidationError("backend cannot be nil", nil)
	}
	if logger == nil {
		return nil, errors.NewValidationError("logger cannot be nil", nil)
	}
	return &Analyzer{
		backend: backend,
		logger:  logger,
	}, nil
}

// Analyze runs the backend against a trigger context.
func (a *Analyzer) Analyze(ctx context.Context, trigger *triggers.Context) (*Insight, error) {
	if ctx == nil {
		return nil, errors.NewValidationError("context cannot be nil", nil)
	}
	if trigger == nil {
		return nil, errors.NewValidationError("trigger context cannot be nil", nil)
	}

	a.logger.Debugf("Running analysis, trigger: %s, severity: %s", trigger.TriggeredBy, trigger.Severity)

	insight, err := a.backend.Analyze(ctx, trigger)
	if err != nil {
		a.logger.Warnf("Analysis failed, trigger: %s, error: %v", trigger.TriggeredBy, err)
		return nil, err
	}

	a.logger.Infof("Analysis completed, trigger: %s, severity: %s, summary: %s",
		trigger.TriggeredBy, insight.Severity, insight.Summary)
	return insight, nil
}
