package main

import (
	"fmt"
	"os"

	"github.com/core-tools/macos-observer/pkg/logging"
	"github.com/core-tools/macos-observer/pkg/observer"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string `long:"config" short:"c" description:"Path to the observer configuration file"`
	LogLevel    string `long:"log-level" default:"info" description:"Log level: debug, info, warn or error"`
	Verbose     bool   `long:"verbose" short:"v" description:"Shorthand for --log-level debug"`
	RunDuration int    `long:"run-duration" description:"Duration in seconds to run the observer (debug feature)"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	logLevel := opts.LogLevel
	if opts.Verbose {
		logLevel = "debug"
	}

	logFuncs, flush := logging.NewZapFuncs(logging.ZapConfig{
		Level:  logLevel,
		Format: "console",
		Output: "stderr",
	})
	defer flush()

	logger := logging.NewLogger("observer , ", logFuncs)

	logger.Infof("opts: %+v", opts)

	err = observer.Run(opts.RunDuration, opts.Config, logger)
	if err != nil {
		logger.Errorf("Observer run failed: %v", err)
		os.Exit(1)
	}
}
