package observer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/macos-observer/pkg/aggregator"
	"github.com/core-tools/macos-observer/pkg/alerts"
	"github.com/core-tools/macos-observer/pkg/analysis"
	"github.com/core-tools/macos-observer/pkg/collectors"
	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/events"
	"github.com/core-tools/macos-observer/pkg/logging"
	"github.com/core-tools/macos-observer/pkg/monitoring"
	"github.com/core-tools/macos-observer/pkg/supervisor"
	"github.com/core-tools/macos-observer/pkg/triggers"
)

// ObserverState represents the current state of the observer lifecycle
type ObserverState string

const (
	// ObserverStateNotStarted is the initial state before Start() is called
	ObserverStateNotStarted ObserverState = "not_started"

	// ObserverStateRunning indicates the pipeline goroutines and collectors are up
	ObserverStateRunning ObserverState = "running"

	// ObserverStateStopping indicates Stop() is tearing the pipeline down
	ObserverStateStopping ObserverState = "stopping"

	// ObserverStateStopped indicates the observer has fully stopped
	ObserverStateStopped ObserverState = "stopped"
)

const (
	// DefaultAnalysisWindow bounds the event history handed to the trigger
	// rules on each evaluation pass
	DefaultAnalysisWindow = 5 * time.Minute

	// DefaultReceiveTimeout caps how long the analysis loop waits for the
	// next event before evaluating the rules anyway
	DefaultReceiveTimeout = 100 * time.Millisecond

	// DefaultNotificationTick is how often queued alerts are retried
	DefaultNotificationTick = 500 * time.Millisecond

	// DefaultMonitorInterval is how often the self-monitor reports health
	DefaultMonitorInterval = time.Minute

	// DefaultEventBufferSize sizes the shared collector event channel
	DefaultEventBufferSize = 1024

	defaultForceShutdownTimeout = 30 * time.Second
)

// Options configures the observer pipeline. The pipeline stages are
// required; zero-valued durations and sizes pick the package defaults.
type Options struct {
	Aggregator *aggregator.Aggregator
	Engine     *triggers.Engine
	Analyzer   *analysis.Analyzer
	Alerts     *alerts.Manager
	// Monitor is optional; a fresh self-monitor is created when nil
	Monitor *monitoring.SelfMonitor

	AnalysisWindow       time.Duration
	ReceiveTimeout       time.Duration
	NotificationTick     time.Duration
	MonitorInterval      time.Duration
	EventBufferSize      int
	ForceShutdownTimeout time.Duration

	Logger logging.Logger
}

// Observer wires the collectors, the event aggregator, the trigger engine,
// the AI analyzer and the alert manager into one pipeline. Collectors
// publish into the shared event channel; a single analysis goroutine drains
// it, keeps the aggregator current and evaluates the trigger rules after
// every event or receive timeout. Firing rules are analyzed and the
// resulting insights handed to the alert manager. A second goroutine ticks
// the alert manager so queued alerts drain as rate-limit capacity frees,
// and a third reports self-monitoring health.
type Observer struct {
	aggregator *aggregator.Aggregator
	engine     *triggers.Engine
	analyzer   *analysis.Analyzer
	alerts     *alerts.Manager
	monitor    *monitoring.SelfMonitor

	analysisWindow       time.Duration
	receiveTimeout       time.Duration
	notificationTick     time.Duration
	monitorInterval      time.Duration
	forceShutdownTimeout time.Duration

	eventCh      chan events.Event
	consumerDone chan struct{}
	shutdownCh   chan struct{}

	analysisCtx    context.Context
	analysisCancel context.CancelFunc

	wg sync.WaitGroup

	collectors map[string]collectors.Collector
	order      []string
	state      ObserverState
	mutex      sync.Mutex

	logger logging.Logger
}

// New assembles an observer around already constructed pipeline stages.
// Collectors are registered afterwards via AddCollector, built against the
// EventChannel and ConsumerDone handles.
func New(options Options) (*Observer, error) {
	if options.Logger == nil {
		return nil, errors.NewValidationError("logger is required", nil)
	}
	if options.Aggregator == nil {
		return nil, errors.NewValidationError("aggregator is required", nil)
	}
	if options.Engine == nil {
		return nil, errors.NewValidationError("trigger engine is required", nil)
	}
	if options.Analyzer == nil {
		return nil, errors.NewValidationError("analyzer is required", nil)
	}
	if options.Alerts == nil {
		return nil, errors.NewValidationError("alert manager is required", nil)
	}
	if options.Monitor == nil {
		options.Monitor = monitoring.NewSelfMonitor(options.Logger)
	}
	if options.AnalysisWindow <= 0 {
		options.AnalysisWindow = DefaultAnalysisWindow
	}
	if options.ReceiveTimeout <= 0 {
		options.ReceiveTimeout = DefaultReceiveTimeout
	}
	if options.NotificationTick <= 0 {
		options.NotificationTick = DefaultNotificationTick
	}
	if options.MonitorInterval <= 0 {
		options.MonitorInterval = DefaultMonitorInterval
	}
	if options.EventBufferSize <= 0 {
		options.EventBufferSize = DefaultEventBufferSize
	}

	analysisCtx, analysisCancel := context.WithCancel(context.Background())

	observer := &Observer{
		aggregator:           options.Aggregator,
		engine:               options.Engine,
		analyzer:             options.Analyzer,
		alerts:               options.Alerts,
		monitor:              options.Monitor,
		analysisWindow:       options.AnalysisWindow,
		receiveTimeout:       options.ReceiveTimeout,
		notificationTick:     options.NotificationTick,
		monitorInterval:      options.MonitorInterval,
		forceShutdownTimeout: options.ForceShutdownTimeout,
		eventCh:              make(chan events.Event, options.EventBufferSize),
		consumerDone:         make(chan struct{}),
		shutdownCh:           make(chan struct{}),
		analysisCtx:          analysisCtx,
		analysisCancel:       analysisCancel,
		collectors:           make(map[string]collectors.Collector),
		state:                ObserverStateNotStarted,
		mutex:                sync.Mutex{},
		logger:               options.Logger,
	}

	return observer, nil
}

// EventChannel is the shared channel collectors publish into. Pass it to
// collector constructors together with ConsumerDone.
func (o *Observer) EventChannel() chan<- events.Event {
	return o.eventCh
}

// ConsumerDone is closed during shutdown so collector sends blocked on a
// full event channel can bail out.
func (o *Observer) ConsumerDone() <-chan struct{} {
	return o.consumerDone
}

func (o *Observer) AddCollector(collector collectors.Collector) error {
	// Validate input
	if collector == nil {
		return errors.NewValidationError("collector cannot be nil", nil)
	}

	name := collector.Name()
	if name == "" {
		return errors.NewValidationError("collector name cannot be empty", nil)
	}

	o.logger.Infof("Adding collector, name: %s", name)

	o.mutex.Lock()
	defer o.mutex.Unlock()

	if o.state != ObserverStateNotStarted {
		return errors.NewValidationError(
			fmt.Sprintf("cannot add collector in observer state '%s': collectors must be added before start", o.state),
			nil,
		).WithContext("collector", name)
	}

	// Check if collector already exists
	if _, exists := o.collectors[name]; exists {
		return errors.NewConflictError("collector already exists", nil).WithContext("collector", name)
	}

	o.collectors[name] = collector
	o.order = append(o.order, name)

	o.logger.Infof("Collector added successfully, name: %s", name)
	return nil
}

// Start launches the analysis, notification and self-monitoring goroutines
// and then starts the collectors in registration order. A collector that
// fails to start aborts the sequence and its error is returned; the caller
// is expected to Stop the observer afterwards.
func (o *Observer) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.NewValidationError("context cannot be nil", nil)
	}

	o.logger.Infof("Starting observer...")

	o.mutex.Lock()
	if o.state != ObserverStateNotStarted {
		state := o.state
		o.mutex.Unlock()
		return errors.NewValidationError(
			fmt.Sprintf("cannot start observer in state '%s'", state), nil)
	}
	o.state = ObserverStateRunning
	o.mutex.Unlock()

	o.wg.Add(3)
	go o.analysisLoop()
	go o.notificationLoop()
	go o.monitorLoop()

	for _, collector := range o.collectorsInOrder() {
		if err := collector.Start(); err != nil {
			o.logger.Errorf("Failed to start collector, name: %s, error: %v", collector.Name(), err)
			return err
		}
		o.logger.Infof("Collector started, name: %s", collector.Name())
	}

	o.logger.Infof("Observer started")
	return nil
}

// Stop tears the pipeline down: unblocks collector sends, stops the
// collectors, aborts any in-flight analysis and waits for the pipeline
// goroutines up to the force shutdown timeout.
func (o *Observer) Stop(ctx context.Context) error {
	o.logger.Infof("Stopping observer...")

	o.mutex.Lock()
	if o.state != ObserverStateRunning {
		state := o.state
		o.mutex.Unlock()
		return errors.NewValidationError(
			fmt.Sprintf("cannot stop observer in state '%s'", state), nil)
	}
	o.state = ObserverStateStopping
	o.mutex.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	forceShutdownTimeout := o.forceShutdownTimeout
	if forceShutdownTimeout <= 0 {
		forceShutdownTimeout = defaultForceShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, forceShutdownTimeout)
	defer cancel()

	// Unblock collector sends before stopping collectors so no worker
	// hangs on a full event channel
	close(o.consumerDone)

	collection := errors.NewErrorCollection()
	for _, collector := range o.collectorsInOrder() {
		if err := collector.Stop(); err != nil {
			o.logger.Errorf("Failed to stop collector, name: %s, error: %v", collector.Name(), err)
			collection.Add(err)
		} else {
			o.logger.Infof("Collector stopped, name: %s", collector.Name())
		}
	}

	// Abort any in-flight analysis and signal the pipeline goroutines
	o.analysisCancel()
	close(o.shutdownCh)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		collection.Add(errors.NewTimeoutError("timed out waiting for observer goroutines to stop", ctx.Err()))
	}

	o.setState(ObserverStateStopped)

	o.logger.Infof("Observer stopped")
	return collection.ToError()
}

// State returns the current observer lifecycle state
func (o *Observer) State() ObserverState {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.state
}

// CollectorStatus pairs a collector name with its supervision snapshot
type CollectorStatus struct {
	Name    string
	Running bool
	Status  supervisor.Status
}

// CollectorStatuses reports all registered collectors in registration order
func (o *Observer) CollectorStatuses() []CollectorStatus {
	ordered := o.collectorsInOrder()

	statuses := make([]CollectorStatus, 0, len(ordered))
	for _, collector := range ordered {
		statuses = append(statuses, CollectorStatus{
			Name:    collector.Name(),
			Running: collector.IsRunning(),
			Status:  collector.Status(),
		})
	}
	return statuses
}

// analysisLoop drains the shared event channel into the aggregator and
// evaluates the trigger rules after every event or receive timeout
func (o *Observer) analysisLoop() {
	defer o.wg.Done()

	for {
		select {
		case event := <-o.eventCh:
			if event != nil {
				o.aggregator.Add(event)
				o.monitor.RecordEventsProcessed(event.Kind(), 1)
			}
		case <-time.After(o.receiveTimeout):
		case <-o.shutdownCh:
			return
		}

		o.evaluateTriggers()
	}
}

func (o *Observer) evaluateTriggers() {
	logs := o.aggregator.RecentLogs(o.analysisWindow)
	metrics := o.aggregator.RecentMetrics(o.analysisWindow)
	disks := o.aggregator.RecentDisks(o.analysisWindow)

	for _, trigger := range o.engine.Evaluate(logs, metrics, disks) {
		o.logger.Infof("Trigger activated: %s", trigger.TriggeredBy)
		o.handleTrigger(trigger)
	}
}

// handleTrigger runs one trigger context through analysis and hands the
// insight to the alert manager. The notification result records the
// handoff, not the eventual delivery of a queued alert.
func (o *Observer) handleTrigger(trigger *triggers.Context) {
	stopTimer := o.monitor.TimeAnalysis()
	insight, err := o.analyzer.Analyze(o.analysisCtx, trigger)
	stopTimer()
	if err != nil {
		o.logger.Errorf("Analysis failed for %s: %v", trigger.TriggeredBy, err)
		return
	}

	if err := o.alerts.SendAlert(insight); err != nil {
		o.logger.Errorf("Failed to send alert for %s: %v", trigger.TriggeredBy, err)
		o.monitor.RecordNotificationResult(false)
		return
	}
	o.monitor.RecordNotificationResult(true)
}

// notificationLoop lets the alert manager retry queued alerts as rate-limit
// capacity frees up
func (o *Observer) notificationLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.notificationTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := o.alerts.Tick(); err != nil {
				o.logger.Errorf("Failed to deliver queued alerts: %v", err)
			}
		case <-o.shutdownCh:
			return
		}
	}
}

// monitorLoop reports pipeline health at a fixed interval. Collect logs its
// own summary and warnings. Aggregator buffers are pruned on the same tick
// so retention holds during quiet periods when no events arrive.
func (o *Observer) monitorLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.aggregator.Prune()
			o.monitor.Collect()
		case <-o.shutdownCh:
			return
		}
	}
}

// collectorsInOrder returns a copy of the registry in registration order
// under lock
func (o *Observer) collectorsInOrder() []collectors.Collector {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	ordered := make([]collectors.Collector, 0, len(o.order))
	for _, name := range o.order {
		ordered = append(ordered, o.collectors[name])
	}
	return ordered
}

// setState sets the observer state under lock
func (o *Observer) setState(state ObserverState) {
	o.mutex.Lock()
	o.state = state
	o.mutex.Unlock()
}
