package observer

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/logging"
)

// Run loads the configuration, assembles the observer pipeline and runs it
// until a signal arrives or the optional run duration elapses
func Run(runDuration int, configFile string, logger logging.Logger) error {
	logger.Infof("Observer runner starting...")

	// Create context with run duration
	ctx := context.Background()
	if runDuration > 0 {
		duration := time.Duration(runDuration) * time.Second
		logger.Infof("Using RUN DURATION of %v", duration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	if configFile != "" {
		logger.Infof("Using CONFIGURATION FILE: %s", configFile)
	}

	// A missing or malformed file falls back to defaults inside
	// LoadConfigFromFile; only value errors are fatal
	config := LoadConfigFromFile(configFile, logger)

	if err := ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}

	observer, err := NewFromConfig(config, logger)
	if err != nil {
		return errors.NewInternalError("failed to create observer", err)
	}

	logger.Infof("Enabling signal handling...")

	// Enable signal handling before the pipeline starts so an early
	// interrupt still shuts it down cleanly
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	if err := observer.Start(ctx); err != nil {
		logger.Errorf("Failed to start observer: %v", err)
		if stopErr := observer.Stop(context.Background()); stopErr != nil {
			logger.Errorf("Cleanup after failed start reported: %v", stopErr)
		}
		return err
	}

	logger.Infof("Observer is fully operational")

	// Wait for graceful shutdown or timeout
	select {
	case receivedSignal := <-sig:
		logger.Infof("Observer runner received signal: %v", receivedSignal)
	case <-ctx.Done():
		logger.Infof("Observer runner run duration elapsed")
	}

	logger.Infof("Ready to stop observer...")

	// Reset context to background to enable graceful shutdown
	if err := observer.Stop(context.Background()); err != nil {
		logger.Errorf("Observer shutdown reported errors: %v", err)
		return err
	}

	logger.Infof("Observer runner stopped")

	return nil
}
