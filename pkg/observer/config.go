package observer

import (
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/core-tools/macos-observer/pkg/aggregator"
	"github.com/core-tools/macos-observer/pkg/alerts"
	"github.com/core-tools/macos-observer/pkg/analysis"
	"github.com/core-tools/macos-observer/pkg/collectors"
	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/events"
	"github.com/core-tools/macos-observer/pkg/logging"
	"github.com/core-tools/macos-observer/pkg/monitoring"
	"github.com/core-tools/macos-observer/pkg/triggers"

	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogPredicate keeps the unified log stream at a survivable volume
	DefaultLogPredicate = "eventType == logEvent"

	// DefaultCollectorInterval is the base sampling interval for all sources
	DefaultCollectorInterval = 5 * time.Second

	// DefaultShutdownTimeout bounds graceful teardown
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultErrorThreshold and DefaultErrorWindowSeconds tune the error
	// frequency rule: strictly more errors than the threshold within the
	// window fire the rule
	DefaultErrorThreshold     = 5
	DefaultErrorWindowSeconds = 60
	DefaultMemoryThreshold    = "warning"
	DefaultCPUSpikeMW         = 1000.0
	DefaultGPUSpikeMW         = 2000.0
	DefaultSpikeWindowSeconds = 30

	// DefaultOllamaEndpoint and the model defaults select the local model
	// when the configuration names a backend without the details
	DefaultOllamaEndpoint = "http://localhost:11434"
	DefaultOllamaModel    = "llama3.2"
	DefaultOpenAIModel    = openai.GPT4oMini
)

// crashKeywords are the fixed indicators the crash detection rule scans for
var crashKeywords = []string{"crash", "abort", "segfault"}

// AIBackendType selects the analysis backend implementation
type AIBackendType string

const (
	AIBackendOllama AIBackendType = "ollama"
	AIBackendOpenAI AIBackendType = "openai"
	AIBackendMock   AIBackendType = "mock"
)

// ObserverConfig represents the top-level configuration file structure
type ObserverConfig struct {
	Observer   ObserverConfigOptions `yaml:"observer"`
	Collectors CollectorsConfig      `yaml:"collectors"`
	Aggregator AggregatorConfig      `yaml:"aggregator"`
	Triggers   TriggersConfig        `yaml:"triggers"`
	AI         AIConfig              `yaml:"ai"`
	Alerts     AlertsConfig          `yaml:"alerts"`
}

// ObserverConfigOptions represents observer-level configuration
type ObserverConfigOptions struct {
	LogLevel        string        `yaml:"log_level,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// CollectorsConfig selects and tunes the event sources
type CollectorsConfig struct {
	Log     LogSourceConfig     `yaml:"log"`
	Metrics MetricsSourceConfig `yaml:"metrics"`
	Disk    DiskSourceConfig    `yaml:"disk"`
}

// LogSourceConfig configures the unified log stream source
type LogSourceConfig struct {
	Predicate string        `yaml:"predicate,omitempty"`
	Interval  time.Duration `yaml:"interval,omitempty"`
	Enabled   *bool         `yaml:"enabled,omitempty"` // Pointer to distinguish unset from false
}

// MetricsSourceConfig configures the power and memory pressure source
type MetricsSourceConfig struct {
	BaseInterval time.Duration `yaml:"base_interval,omitempty"`
	Enabled      *bool         `yaml:"enabled,omitempty"`
}

// DiskSourceConfig configures the disk I/O source
type DiskSourceConfig struct {
	Interval       time.Duration `yaml:"interval,omitempty"`
	FSUsageEnabled *bool         `yaml:"fs_usage_enabled,omitempty"`
	Enabled        *bool         `yaml:"enabled,omitempty"`
}

// AggregatorConfig bounds the in-memory event buffers
type AggregatorConfig struct {
	MaxAge  time.Duration `yaml:"max_age,omitempty"`
	MaxSize int           `yaml:"max_size,omitempty"`
}

// TriggersConfig tunes the built-in rule thresholds
type TriggersConfig struct {
	ErrorThreshold     int     `yaml:"error_threshold,omitempty"`
	ErrorWindowSeconds int     `yaml:"error_window_seconds,omitempty"`
	MemoryThreshold    string  `yaml:"memory_threshold,omitempty"`
	CPUSpikeMW         float64 `yaml:"cpu_spike_mw,omitempty"`
	GPUSpikeMW         float64 `yaml:"gpu_spike_mw,omitempty"`
	SpikeWindowSeconds int     `yaml:"spike_window_seconds,omitempty"`
}

// AIConfig selects and configures the analysis backend
type AIConfig struct {
	Backend AIBackendType `yaml:"backend,omitempty"`
	// Endpoint applies to the ollama backend
	Endpoint string `yaml:"endpoint,omitempty"`
	Model    string `yaml:"model,omitempty"`
	// APIKey applies to the openai backend
	APIKey string `yaml:"api_key,omitempty"`
}

// AlertsConfig tunes notification delivery
type AlertsConfig struct {
	RateLimitPerMinute int `yaml:"rate_limit_per_minute,omitempty"`
	QueueSize          int `yaml:"queue_size,omitempty"`
	// Mock routes notifications to the log instead of osascript
	Mock bool `yaml:"mock,omitempty"`
}

// NewDefaultConfig returns the built-in configuration
func NewDefaultConfig() *ObserverConfig {
	config := &ObserverConfig{}
	setConfigDefaults(config)
	return config
}

// LoadConfigFromFile loads observer configuration from a YAML file. The
// agent must come up even with a broken configuration, so a missing,
// unreadable or malformed file falls back to the defaults with a warning.
// Value errors are left to ValidateConfig.
func LoadConfigFromFile(filename string, logger logging.Logger) *ObserverConfig {
	if filename == "" {
		logger.Infof("Using default configuration")
		return NewDefaultConfig()
	}

	data, err := ioutil.ReadFile(filename)
	if err != nil {
		logger.Warnf("Configuration file '%s' not found or unreadable, using defaults", filename)
		return NewDefaultConfig()
	}

	var config ObserverConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		logger.Errorf("Invalid config file '%s': %v", filename, err)
		logger.Warnf("Using default configuration due to invalid config file")
		return NewDefaultConfig()
	}

	setConfigDefaults(&config)

	logger.Infof("Loaded configuration from %s", filename)
	return &config
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *ObserverConfig) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateObserverConfig(&config.Observer); err != nil {
		return errors.NewValidationError("invalid observer configuration", err)
	}
	if err := validateCollectorsConfig(&config.Collectors); err != nil {
		return errors.NewValidationError("invalid collectors configuration", err)
	}
	if err := validateAggregatorConfig(&config.Aggregator); err != nil {
		return errors.NewValidationError("invalid aggregator configuration", err)
	}
	if err := validateTriggersConfig(&config.Triggers); err != nil {
		return errors.NewValidationError("invalid triggers configuration", err)
	}
	if err := validateAIConfig(&config.AI); err != nil {
		return errors.NewValidationError("invalid ai configuration", err)
	}
	if err := validateAlertsConfig(&config.Alerts); err != nil {
		return errors.NewValidationError("invalid alerts configuration", err)
	}

	return nil
}

// NewFromConfig builds the full pipeline from a configuration: analysis
// backend, alert manager, trigger rules, aggregator, self-monitor, the
// observer itself and the enabled collectors.
func NewFromConfig(config *ObserverConfig, logger logging.Logger) (*Observer, error) {
	if config == nil {
		return nil, errors.NewValidationError("configuration cannot be nil", nil)
	}
	if logger == nil {
		return nil, errors.NewValidationError("logger cannot be nil", nil)
	}

	backend, err := createAnalysisBackend(&config.AI, logger)
	if err != nil {
		return nil, err
	}

	analyzer, err := analysis.NewAnalyzer(backend, logger)
	if err != nil {
		return nil, err
	}

	manager, err := alerts.NewManager(
		config.Alerts.RateLimitPerMinute,
		config.Alerts.QueueSize,
		createNotifier(&config.Alerts, logger),
		logger,
	)
	if err != nil {
		return nil, err
	}

	observer, err := New(Options{
		Aggregator:           aggregator.New(config.Aggregator.MaxAge, config.Aggregator.MaxSize),
		Engine:               createTriggerEngine(&config.Triggers),
		Analyzer:             analyzer,
		Alerts:               manager,
		Monitor:              monitoring.NewSelfMonitor(logger),
		ForceShutdownTimeout: config.Observer.ShutdownTimeout,
		Logger:               logger,
	})
	if err != nil {
		return nil, err
	}

	if err := addCollectorsFromConfig(observer, &config.Collectors, logger); err != nil {
		return nil, err
	}

	return observer, nil
}

// createTriggerEngine registers the built-in rules with the configured
// thresholds. Crash keywords and rule severities are fixed.
func createTriggerEngine(config *TriggersConfig) *triggers.Engine {
	errorWindow := time.Duration(config.ErrorWindowSeconds) * time.Second
	spikeWindow := time.Duration(config.SpikeWindowSeconds) * time.Second
	memoryThreshold := events.ParseMemoryPressure(config.MemoryThreshold)

	engine := triggers.NewEngine()
	engine.AddRule(triggers.NewErrorFrequencyRule(config.ErrorThreshold, errorWindow, events.SeverityWarning))
	engine.AddRule(triggers.NewMemoryPressureRule(memoryThreshold, events.SeverityWarning))
	engine.AddRule(triggers.NewCrashDetectionRule(crashKeywords, events.SeverityCritical))
	engine.AddRule(triggers.NewResourceSpikeRule(config.CPUSpikeMW, config.GPUSpikeMW, spikeWindow, events.SeverityWarning))
	return engine
}

// createAnalysisBackend creates the analysis backend selected by the
// configuration
func createAnalysisBackend(config *AIConfig, logger logging.Logger) (analysis.Backend, error) {
	switch config.Backend {
	case AIBackendOllama:
		return analysis.NewOllamaBackend(config.Endpoint, config.Model, logger)

	case AIBackendOpenAI:
		return analysis.NewOpenAIBackend(config.APIKey, config.Model, logger)

	case AIBackendMock:
		return analysis.NewMockBackend(), nil

	default:
		return nil, errors.NewValidationError(
			fmt.Sprintf("unsupported AI backend: %s", config.Backend),
			nil,
		).WithContext("supported_backends", "ollama, openai, mock")
	}
}

func createNotifier(config *AlertsConfig, logger logging.Logger) alerts.Notifier {
	if config.Mock {
		return alerts.NewLogNotifier(logger)
	}
	return alerts.NewOsascriptNotifier(logger)
}

// addCollectorsFromConfig creates and registers the enabled collectors
// against the observer's shared event channel
func addCollectorsFromConfig(observer *Observer, config *CollectorsConfig, logger logging.Logger) error {
	pressure := monitoring.NewPressureMonitor(logger)
	eventCh := observer.EventChannel()
	consumerDone := observer.ConsumerDone()

	if config.Log.Enabled != nil && !*config.Log.Enabled {
		logger.Infof("Skipping disabled collector, name: log")
	} else {
		collector, err := collectors.NewLogCollector(collectors.LogConfig{
			Predicate: config.Log.Predicate,
			Interval:  config.Log.Interval,
		}, eventCh, consumerDone, pressure, logger)
		if err != nil {
			return errors.NewValidationError("failed to create log collector", err)
		}
		if err := observer.AddCollector(collector); err != nil {
			return err
		}
	}

	if config.Metrics.Enabled != nil && !*config.Metrics.Enabled {
		logger.Infof("Skipping disabled collector, name: metrics")
	} else {
		collector, err := collectors.NewMetricsCollector(collectors.MetricsConfig{
			Interval: config.Metrics.BaseInterval,
		}, eventCh, consumerDone, pressure, logger)
		if err != nil {
			return errors.NewValidationError("failed to create metrics collector", err)
		}
		if err := observer.AddCollector(collector); err != nil {
			return err
		}
	}

	if config.Disk.Enabled != nil && !*config.Disk.Enabled {
		logger.Infof("Skipping disabled collector, name: disk")
	} else {
		collector, err := collectors.NewDiskCollector(collectors.DiskConfig{
			Interval:       config.Disk.Interval,
			FSUsageEnabled: config.Disk.FSUsageEnabled,
		}, eventCh, consumerDone, pressure, logger)
		if err != nil {
			return errors.NewValidationError("failed to create disk collector", err)
		}
		if err := observer.AddCollector(collector); err != nil {
			return err
		}
	}

	return nil
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *ObserverConfig) {
	if config.Observer.LogLevel == "" {
		config.Observer.LogLevel = "info"
	}
	if config.Observer.ShutdownTimeout == 0 {
		config.Observer.ShutdownTimeout = DefaultShutdownTimeout
	}

	if config.Collectors.Log.Predicate == "" {
		config.Collectors.Log.Predicate = DefaultLogPredicate
	}
	if config.Collectors.Log.Interval == 0 {
		config.Collectors.Log.Interval = DefaultCollectorInterval
	}
	if config.Collectors.Log.Enabled == nil {
		enabled := true
		config.Collectors.Log.Enabled = &enabled
	}
	if config.Collectors.Metrics.BaseInterval == 0 {
		config.Collectors.Metrics.BaseInterval = DefaultCollectorInterval
	}
	if config.Collectors.Metrics.Enabled == nil {
		enabled := true
		config.Collectors.Metrics.Enabled = &enabled
	}
	if config.Collectors.Disk.Interval == 0 {
		config.Collectors.Disk.Interval = DefaultCollectorInterval
	}
	if config.Collectors.Disk.Enabled == nil {
		enabled := true
		config.Collectors.Disk.Enabled = &enabled
	}

	if config.Aggregator.MaxAge == 0 {
		config.Aggregator.MaxAge = aggregator.DefaultMaxAge
	}
	if config.Aggregator.MaxSize == 0 {
		config.Aggregator.MaxSize = aggregator.DefaultMaxSize
	}

	if config.Triggers.ErrorThreshold == 0 {
		config.Triggers.ErrorThreshold = DefaultErrorThreshold
	}
	if config.Triggers.ErrorWindowSeconds == 0 {
		config.Triggers.ErrorWindowSeconds = DefaultErrorWindowSeconds
	}
	if config.Triggers.MemoryThreshold == "" {
		config.Triggers.MemoryThreshold = DefaultMemoryThreshold
	}
	if config.Triggers.CPUSpikeMW == 0 {
		config.Triggers.CPUSpikeMW = DefaultCPUSpikeMW
	}
	if config.Triggers.GPUSpikeMW == 0 {
		config.Triggers.GPUSpikeMW = DefaultGPUSpikeMW
	}
	if config.Triggers.SpikeWindowSeconds == 0 {
		config.Triggers.SpikeWindowSeconds = DefaultSpikeWindowSeconds
	}

	if config.AI.Backend == "" {
		config.AI.Backend = AIBackendMock
	}
	if config.AI.Endpoint == "" {
		config.AI.Endpoint = DefaultOllamaEndpoint
	}
	if config.AI.Model == "" {
		switch config.AI.Backend {
		case AIBackendOpenAI:
			config.AI.Model = DefaultOpenAIModel
		default:
			config.AI.Model = DefaultOllamaModel
		}
	}

	if config.Alerts.RateLimitPerMinute == 0 {
		config.Alerts.RateLimitPerMinute = alerts.DefaultRateLimitPerMinute
	}
	if config.Alerts.QueueSize == 0 {
		config.Alerts.QueueSize = alerts.DefaultQueueSize
	}
}

// Validation functions

func validateObserverConfig(config *ObserverConfigOptions) error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if config.LogLevel != "" {
		valid := false
		for _, level := range validLogLevels {
			if config.LogLevel == level {
				valid = true
				break
			}
		}
		if !valid {
			return errors.NewValidationError(
				fmt.Sprintf("invalid log level: %s", config.LogLevel),
				nil,
			).WithContext("valid_levels", "debug, info, warn, error")
		}
	}

	if config.ShutdownTimeout < 0 {
		return errors.NewValidationError(
			fmt.Sprintf("shutdown timeout cannot be negative: %v", config.ShutdownTimeout), nil)
	}

	return nil
}

func validateCollectorsConfig(config *CollectorsConfig) error {
	if config.Log.Predicate == "" {
		return errors.NewValidationError("log predicate cannot be empty", nil)
	}
	if config.Log.Interval <= 0 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid log interval: %v", config.Log.Interval), nil)
	}
	if config.Metrics.BaseInterval <= 0 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid metrics base interval: %v", config.Metrics.BaseInterval), nil)
	}
	if config.Disk.Interval <= 0 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid disk interval: %v", config.Disk.Interval), nil)
	}
	return nil
}

func validateAggregatorConfig(config *AggregatorConfig) error {
	if config.MaxAge <= 0 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid aggregator max age: %v", config.MaxAge), nil)
	}
	if config.MaxSize <= 0 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid aggregator max size: %d", config.MaxSize), nil)
	}
	return nil
}

func validateTriggersConfig(config *TriggersConfig) error {
	if config.ErrorThreshold < 0 {
		return errors.NewValidationError(
			fmt.Sprintf("error threshold cannot be negative: %d", config.ErrorThreshold), nil)
	}
	if config.ErrorWindowSeconds <= 0 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid error window: %ds", config.ErrorWindowSeconds), nil)
	}

	validThresholds := []string{"normal", "warning", "critical"}
	threshold := strings.ToLower(config.MemoryThreshold)
	valid := false
	for _, level := range validThresholds {
		if threshold == level {
			valid = true
			break
		}
	}
	if !valid {
		return errors.NewValidationError(
			fmt.Sprintf("invalid memory threshold: %s", config.MemoryThreshold),
			nil,
		).WithContext("valid_thresholds", "normal, warning, critical")
	}

	if config.CPUSpikeMW <= 0 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid cpu spike threshold: %.1fmW", config.CPUSpikeMW), nil)
	}
	if config.GPUSpikeMW <= 0 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid gpu spike threshold: %.1fmW", config.GPUSpikeMW), nil)
	}
	if config.SpikeWindowSeconds <= 0 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid spike window: %ds", config.SpikeWindowSeconds), nil)
	}

	return nil
}

func validateAIConfig(config *AIConfig) error {
	switch config.Backend {
	case AIBackendOllama:
		if config.Endpoint == "" {
			return errors.NewValidationError("endpoint is required for the ollama backend", nil)
		}
		if config.Model == "" {
			return errors.NewValidationError("model is required for the ollama backend", nil)
		}
	case AIBackendOpenAI:
		if config.APIKey == "" {
			return errors.NewValidationError("api_key is required for the openai backend", nil)
		}
		if config.Model == "" {
			return errors.NewValidationError("model is required for the openai backend", nil)
		}
	case AIBackendMock:
		// nothing to check
	default:
		return errors.NewValidationError(
			fmt.Sprintf("unsupported AI backend: %s", config.Backend),
			nil,
		).WithContext("supported_backends", "ollama, openai, mock")
	}
	return nil
}

func validateAlertsConfig(config *AlertsConfig) error {
	if config.RateLimitPerMinute <= 0 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid alert rate limit: %d", config.RateLimitPerMinute), nil)
	}
	if config.QueueSize <= 0 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid alert queue size: %d", config.QueueSize), nil)
	}
	return nil
}
