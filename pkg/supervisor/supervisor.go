package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/events"
	"github.com/core-tools/macos-observer/pkg/framing"
	"github.com/core-tools/macos-observer/pkg/logging"
	"github.com/core-tools/macos-observer/pkg/process"
	"github.com/core-tools/macos-observer/pkg/restart"
	"github.com/core-tools/macos-observer/pkg/sampling"
	"github.com/core-tools/macos-observer/pkg/translate"
)

// State is the externally visible lifecycle state of a supervised collector
type State string

const (
	StateStopped    State = "stopped"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	StateDegraded   State = "degraded"
)

// Status is a point-in-time snapshot of a collector's supervision state
type Status struct {
	State               State
	ConsecutiveFailures int
	RestartDelay        time.Duration // meaningful while State is StateRestarting
}

// PressureOracle reports whether the host is under resource pressure.
// Polled once per supervision iteration to throttle sampling.
type PressureOracle interface {
	UnderResourcePressure() bool
}

// SpawnFunc starts the external tool parameterized by the current sampling
// interval. On success the returned stream carries the tool's combined
// stdout+stderr and the process handle may be nil only when the stream is
// not backed by a real process.
type SpawnFunc func(ctx context.Context, interval time.Duration) (*os.Process, io.ReadCloser, error)

// ProbeFunc synchronously checks that the external tool is usable, typically
// by a one-shot spawn-and-kill, so Start can fail fast without leaving a
// worker behind.
type ProbeFunc func(ctx context.Context) error

const (
	defaultPollInterval = 50 * time.Millisecond

	// sleepSlice bounds how long a restart or degraded-mode pause can delay
	// shutdown observation
	sleepSlice = 500 * time.Millisecond

	readChunkSize = 4096
)

// Options configures a Supervisor. Spawn, Framer, Translator, Events,
// Sampler and Logger are required.
type Options struct {
	// Name identifies the collector in logs and errors, e.g. "log" or "disk"
	Name string

	Spawn SpawnFunc

	// Probe is run synchronously by Start before the worker is launched.
	// Optional; nil skips the availability check.
	Probe ProbeFunc

	Framer     framing.Framer
	Translator translate.Translator

	// Events receives translated events in the exact order they were parsed
	// from the stream
	Events chan<- events.Event

	// ConsumerDone, when closed, tells the supervisor the downstream
	// consumer is gone; forwarding stops cleanly without counting as a
	// failure. Optional.
	ConsumerDone <-chan struct{}

	Sampler *sampling.Controller

	// Pressure is consulted once per iteration to adapt the sampling
	// interval. Optional; nil disables adaptation.
	Pressure PressureOracle

	// PollInterval bounds how long the worker can go without checking the
	// shutdown flag while the stream is idle. Defaults to 50ms.
	PollInterval time.Duration

	Logger logging.Logger
}

// Supervisor owns one worker goroutine that spawns a long-running external
// tool, frames and translates its output stream, and restarts it with
// exponential backoff and a degraded-mode fallback on repeated failure.
type Supervisor struct {
	name         string
	spawn        SpawnFunc
	probe        ProbeFunc
	framer       framing.Framer
	translator   translate.Translator
	events       chan<- events.Event
	consumerDone <-chan struct{}
	sampler      *sampling.Controller
	pressure     PressureOracle
	pollInterval time.Duration
	logger       logging.Logger

	policy *restart.Policy // owned by the worker goroutine

	mu            sync.Mutex
	state         State
	stopRequested bool
	failures      int
	restartDelay  time.Duration
	done          chan struct{}
	workerErr     error
}

func New(options Options) (*Supervisor, error) {
	if options.Name == "" {
		return nil, errors.NewValidationError("collector name is required", nil)
	}
	if options.Spawn == nil {
		return nil, errors.NewValidationError("spawn function is required", nil).WithContext("collector", options.Name)
	}
	if options.Framer == nil {
		return nil, errors.NewValidationError("framer is required", nil).WithContext("collector", options.Name)
	}
	if options.Translator == nil {
		return nil, errors.NewValidationError("translator is required", nil).WithContext("collector", options.Name)
	}
	if options.Events == nil {
		return nil, errors.NewValidationError("event channel is required", nil).WithContext("collector", options.Name)
	}
	if options.Sampler == nil {
		return nil, errors.NewValidationError("sampling controller is required", nil).WithContext("collector", options.Name)
	}
	if options.Logger == nil {
		return nil, errors.NewValidationError("logger is required", nil).WithContext("collector", options.Name)
	}

	pollInterval := options.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &Supervisor{
		name:         options.Name,
		spawn:        options.Spawn,
		probe:        options.Probe,
		framer:       options.Framer,
		translator:   options.Translator,
		events:       options.Events,
		consumerDone: options.ConsumerDone,
		sampler:      options.Sampler,
		pressure:     options.Pressure,
		pollInterval: pollInterval,
		logger:       options.Logger,
		policy:       restart.NewPolicy(),
		state:        StateStopped,
	}, nil
}

// Start probes the external tool and launches the supervision worker.
// Calling Start on a running supervisor is a no-op returning nil.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		s.logger.Debugf("%s collector already running, ignoring start", s.name)
		return nil
	}
	s.state = StateRunning
	s.stopRequested = false
	s.mu.Unlock()

	if s.probe != nil {
		if err := s.probe(context.Background()); err != nil {
			s.mu.Lock()
			s.state = StateStopped
			s.mu.Unlock()
			s.logger.Errorf("%s collector probe failed: %v", s.name, err)
			return err
		}
	}

	s.mu.Lock()
	s.done = make(chan struct{})
	s.workerErr = nil
	s.mu.Unlock()

	s.logger.Infof("Starting %s collector, interval: %v", s.name, s.sampler.Current())

	go s.run()

	return nil
}

// Stop requests shutdown and waits for the worker to exit and the child
// process to be reaped. Idempotent. Returns a join error if the worker
// panicked.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.state == StateStopped && s.done == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopRequested = true
	done := s.done
	s.mu.Unlock()

	s.logger.Infof("Stopping %s collector", s.name)

	if done != nil {
		<-done
	}

	s.mu.Lock()
	err := s.workerErr
	s.workerErr = nil
	s.done = nil
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.logger.Infof("Stopped %s collector", s.name)
	return nil
}

// Name returns the collector name the supervisor was configured with
func (s *Supervisor) Name() string {
	return s.name
}

// IsRunning reports whether the supervision worker is active
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateStopped
}

// Status returns a snapshot of the current supervision state
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:               s.state,
		ConsecutiveFailures: s.failures,
		RestartDelay:        s.restartDelay,
	}
}

// attemptOutcome classifies how one spawn-and-stream attempt ended
type attemptOutcome int

const (
	// outcomeStopped means the attempt ended because stop was requested;
	// the run was healthy
	outcomeStopped attemptOutcome = iota
	// outcomeFailed means the tool terminated or errored without a stop
	// request
	outcomeFailed
	// outcomeConsumerGone means the downstream receiver is gone; the worker
	// parks without counting a failure
	outcomeConsumerGone
)

func (s *Supervisor) run() {
	defer s.finish()

	for !s.stopping() {
		if s.pressure != nil {
			if interval, changed := s.sampler.Adjust(s.pressure.UnderResourcePressure()); changed {
				s.logger.Infof("Adjusted %s sampling interval to %v", s.name, interval)
			}
		}
		interval := s.sampler.Current()

		s.setState(StateRunning, 0)

		outcome := s.runAttempt(interval)

		switch outcome {
		case outcomeConsumerGone:
			s.logger.Infof("%s event consumer is gone, collector parking", s.name)
			return
		case outcomeStopped:
			s.policy.RecordSuccess()
		case outcomeFailed:
			s.policy.RecordFailure()
			s.logger.Warnf("%s source terminated unexpectedly (failure %d/%d)",
				s.name, s.policy.Failures(), restart.MaxConsecutiveFailures)
		}
		s.setFailures(s.policy.Failures())

		if s.stopping() {
			return
		}

		if s.policy.ShouldDegrade() {
			s.logger.Errorf("%s source failed %d consecutive times, entering degraded mode for %v",
				s.name, s.policy.Failures(), restart.DegradedPause)
			s.setState(StateDegraded, 0)
			if !s.sleepInterruptible(restart.DegradedPause) {
				return
			}
			s.policy.Reset()
			s.setFailures(0)
			s.logger.Infof("Exiting degraded mode, resuming %s collection", s.name)
			continue
		}

		if s.policy.Failures() > 0 {
			delay := s.policy.NextDelay()
			s.logger.Warnf("Restarting %s source in %v (failure %d/%d)",
				s.name, delay, s.policy.Failures(), restart.MaxConsecutiveFailures)
			s.setState(StateRestarting, delay)
			if !s.sleepInterruptible(delay) {
				return
			}
		}
	}
}

// runAttempt performs one spawn-and-stream cycle. The child is always
// killed and reaped before returning, whatever the outcome.
func (s *Supervisor) runAttempt(interval time.Duration) attemptOutcome {
	proc, stdout, err := s.spawn(context.Background(), interval)
	if err != nil {
		s.logger.Errorf("Failed to spawn %s source: %v", s.name, err)
		return outcomeFailed
	}

	// Deferred so the child is reaped even if the worker panics mid-stream
	defer func() {
		stdout.Close()
		if proc != nil {
			if err := process.Kill(proc); err != nil {
				s.logger.Debugf("Failed to kill %s source process, PID: %d, error: %v", s.name, proc.Pid, err)
			}
			proc.Wait()
		}
	}()

	return s.stream(stdout)
}

type readResult struct {
	chunk []byte
	err   error
}

// stream drives the read, frame, translate, forward loop for one spawned
// process. A dedicated reader goroutine performs the blocking reads so this
// loop can keep observing the shutdown flag at pollInterval granularity.
func (s *Supervisor) stream(stdout io.ReadCloser) attemptOutcome {
	readCh := make(chan readResult)
	readerDone := make(chan struct{})
	defer close(readerDone)

	go func() {
		defer close(readCh)
		buf := make([]byte, readChunkSize)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case readCh <- readResult{chunk: chunk}:
				case <-readerDone:
					return
				}
			}
			if err != nil {
				select {
				case readCh <- readResult{err: err}:
				case <-readerDone:
				}
				return
			}
		}
	}()

	var buffer framing.Buffer

	for {
		if s.stopping() {
			return outcomeStopped
		}

		select {
		case result, ok := <-readCh:
			if !ok {
				if s.stopping() {
					return outcomeStopped
				}
				return outcomeFailed
			}
			if result.err != nil {
				if s.stopping() {
					return outcomeStopped
				}
				if result.err == io.EOF {
					s.logger.Warnf("%s source stream ended", s.name)
				} else {
					s.logger.Warnf("Failed to read %s source stream: %v", s.name, result.err)
				}
				return outcomeFailed
			}

			for _, record := range s.framer.Feed(&buffer, result.chunk) {
				event, err := s.translator.Translate(record)
				if err != nil {
					s.logger.Warnf("Dropping malformed %s record: %v", s.name, err)
					continue
				}
				if event == nil {
					continue
				}
				delivered, consumerGone := s.forward(event)
				if consumerGone {
					return outcomeConsumerGone
				}
				if !delivered {
					return outcomeStopped
				}
			}

		case <-time.After(s.pollInterval):
			// idle; loop around to re-check the shutdown flag
		}
	}
}

// forward sends one event downstream. It keeps the shutdown flag observable
// while blocked on a full channel. delivered is false when a stop request
// interrupted the send; consumerGone is true when the receiver is gone.
func (s *Supervisor) forward(event events.Event) (delivered bool, consumerGone bool) {
	for {
		select {
		case s.events <- event:
			return true, false
		case <-s.consumerDone:
			return false, true
		case <-time.After(s.pollInterval):
			if s.stopping() {
				return false, false
			}
		}
	}
}

// sleepInterruptible sleeps for total in small slices, returning false as
// soon as a stop request is observed
func (s *Supervisor) sleepInterruptible(total time.Duration) bool {
	deadline := time.Now().Add(total)
	for {
		if s.stopping() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining > sleepSlice {
			remaining = sleepSlice
		}
		time.Sleep(remaining)
	}
}

func (s *Supervisor) finish() {
	var joinErr error
	if r := recover(); r != nil {
		joinErr = errors.NewJoinError(fmt.Sprintf("%s collector worker panicked: %v", s.name, r), nil)
		s.logger.Errorf("%s collector worker panicked: %v", s.name, r)
	}

	s.mu.Lock()
	s.state = StateStopped
	s.restartDelay = 0
	s.workerErr = joinErr
	done := s.done
	s.mu.Unlock()

	close(done)
}

func (s *Supervisor) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

func (s *Supervisor) setState(state State, restartDelay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopRequested {
		return
	}
	s.state = state
	s.restartDelay = restartDelay
}

func (s *Supervisor) setFailures(failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = failures
}
