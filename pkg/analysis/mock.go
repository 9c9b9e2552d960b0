package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/macos-observer/pkg/events"
	"github.com/core-tools/macos-observer/pkg/triggers"
)

type mockResponse struct {
	insight *Insight
	err     error
}

// MockBackend returns canned responses. It backs the default configuration
// when no model credentials are set, and tests use it to script analysis
// outcomes. Responses cycle, so a single-response mock answers forever.
type MockBackend struct {
	mu          sync.Mutex
	responses   []mockResponse
	index       int
	delay       time.Duration
	calls       int
	lastTrigger *triggers.Context
}

// NewMockBackend returns a mock that always succeeds with a fixed insight.
func NewMockBackend() *MockBackend {
	rootCause := "Mock root cause"
	return NewMockBackendWithInsight(&Insight{
		Timestamp: time.Now().UTC(),
		Summary:   "Mock successful analysis",
		RootCause: &rootCause,
		Recommendations: []string{
			"Mock recommendation 1",
			"Mock recommendation 2",
		},
		Severity: events.SeverityInfo,
	})
}

// NewMockBackendWithInsight returns a mock that always returns the given
// insight.
func NewMockBackendWithInsight(insight *Insight) *MockBackend {
	return &MockBackend{responses: []mockResponse{{insight: insight}}}
}

// NewMockBackendWithError returns a mock that always fails.
func NewMockBackendWithError(err error) *MockBackend {
	return &MockBackend{responses: []mockResponse{{err: err}}}
}

// NewMockBackendWithSequence cycles through the given outcomes in order.
// Pair each insight with a nil error or each error with a nil insight.
func NewMockBackendWithSequence(responses ...mockResponse) *MockBackend {
	if len(responses) == 0 {
		return NewMockBackend()
	}
	return &MockBackend{responses: responses}
}

// MockSuccess builds a sequence entry that succeeds.
func MockSuccess(insight *Insight) mockResponse { return mockResponse{insight: insight} }

// MockFailure builds a sequence entry that fails.
func MockFailure(err error) mockResponse { return mockResponse{err: err} }

// WithDelay makes every call block for d before answering, for timeout
// and cancellation tests.
func (b *MockBackend) WithDelay(d time.Duration) *MockBackend {
	b.delay = d
	return b
}

// Analyze records the call and returns the next scripted response.
func (b *MockBackend) Analyze(ctx context.Context, trigger *triggers.Context) (*Insight, error) {
	b.mu.Lock()
	b.calls++
	b.lastTrigger = trigger
	response := b.responses[b.index%len(b.responses)]
	b.index++
	delay := b.delay
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return response.insight, response.err
}

// CallCount reports how many times Analyze ran.
func (b *MockBackend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// LastTrigger returns the trigger context from the most recent call, or
// nil before the first one.
func (b *MockBackend) LastTrigger() *triggers.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastTrigger
}
