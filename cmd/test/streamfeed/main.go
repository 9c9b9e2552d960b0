package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/core-tools/macos-observer/pkg/framing"

	flags "github.com/jessevdk/go-flags"
	"howett.net/plist"
)

type flagOptions struct {
	Mode           string `long:"mode" default:"log" description:"Stream shape to emit: log, metrics, metrics-json or disk"`
	IntervalMS     int    `long:"interval-ms" default:"500" description:"Milliseconds between records"`
	RunDuration    int    `long:"run-duration" description:"Duration in seconds to run the feed (debug feature)"`
	MalformedEvery int    `long:"malformed-every" description:"Inject a malformed record every N records (0 disables)"`
}

// feed pairs the record generator for a mode with a malformed record that
// exercises the matching translator's error path
type feed struct {
	emit      func(i int) string
	malformed string
}

var feeds = map[string]feed{
	"log":          {emitLog, `{"timestamp": "2025-08-25 14:03:22`},
	"metrics":      {emitMetricsPlist, framing.PlistMarker + "\n<plist version=\"1.0\"><dict><key>processor</key></plist>"},
	"metrics-json": {emitMetricsJSON, `{"cpu_power_mw": "not a number"}`},
	"disk":         {emitDisk, "disk0 n/a n/a n/a n/a"},
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

	f, ok := feeds[opts.Mode]
	if !ok {
		fmt.Printf("Unknown mode %q, want log, metrics, metrics-json or disk\n", opts.Mode)
		os.Exit(1)
	}
	if opts.IntervalMS <= 0 {
		fmt.Printf("Interval must be positive, got %d ms\n", opts.IntervalMS)
		os.Exit(1)
	}

	// stdout carries the stream, status goes to stderr
	fmt.Fprintf(os.Stderr, "Running Streamfeed, opts: %+v...\n", opts)

	runDuration := opts.RunDuration

	ctx := context.Background()

	if runDuration > 0 {
		fmt.Fprintf(os.Stderr, "Using RUN DURATION of %d seconds\n", runDuration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(runDuration)*time.Second)
		defer cancel()
	}

	// Enable signal handling
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	fmt.Fprintf(os.Stderr, "Streamfeed is ready, emitting %s records...\n", opts.Mode)

	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(time.Duration(opts.IntervalMS) * time.Millisecond)
		defer ticker.Stop()

		count := 0
		for {
			select {
			case <-ticker.C:
				count++
				if opts.MalformedEvery > 0 && count%opts.MalformedEvery == 0 {
					fmt.Println(f.malformed)
					continue
				}
				fmt.Println(f.emit(count))
			case <-stop:
				return
			}
		}
	}()

	// Wait for graceful shutdown or timeout
	select {
	case receivedSignal := <-sig:
		fmt.Fprintf(os.Stderr, "Streamfeed received signal: %v\n", receivedSignal)
	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "Streamfeed run duration elapsed\n")
	}

	close(stop)
	wg.Wait()

	fmt.Fprintf(os.Stderr, "Streamfeed stopped\n")
}

// logTimestampLayout matches the unified log timestamp format
const logTimestampLayout = "2006-01-02 15:04:05.999999-0700"

// logRecord carries the field names of `log stream --style json` output
type logRecord struct {
	Timestamp   string `json:"timestamp"`
	MessageType string `json:"messageType"`
	Subsystem   string `json:"subsystem"`
	Category    string `json:"category"`
	Process     string `json:"process"`
	ProcessID   uint32 `json:"processID"`
	Message     string `json:"message"`
}

// logScript cycles through quiet lines, errors and a crash fault so every
// trigger rule sees matching input over a full pass
var logScript = []logRecord{
	{MessageType: "Info", Subsystem: "com.apple.windowserver", Category: "display", Process: "WindowServer", ProcessID: 363, Message: "Display configuration changed"},
	{MessageType: "Error", Subsystem: "com.apple.iokit", Category: "device", Process: "kernelmanagerd", ProcessID: 101, Message: "IOReturn error 0xe00002bc from device query"},
	{MessageType: "Debug", Subsystem: "com.apple.spotlight", Category: "index", Process: "mds", ProcessID: 412, Message: "Committed batch of 128 items"},
	{MessageType: "Error", Subsystem: "com.apple.windowserver", Category: "surface", Process: "WindowServer", ProcessID: 363, Message: "Surface allocation failed, retrying"},
	{MessageType: "Fault", Subsystem: "com.apple.gpu", Category: "restart", Process: "MTLCompilerService", ProcessID: 977, Message: "GPU pipeline crash detected, restarting service"},
	{MessageType: "Info", Subsystem: "com.apple.xpc.launchd", Category: "job", Process: "launchd", ProcessID: 1, Message: "Service exited with code 0"},
}

func emitLog(i int) string {
	record := logScript[i%len(logScript)]
	record.Timestamp = time.Now().Format(logTimestampLayout)
	line, _ := json.Marshal(record)
	return string(line)
}

type processorSample struct {
	CPUPowerMW float64 `plist:"cpu_power"`
	CPUUsage   float64 `plist:"cpu_usage"`
}

type gpuSample struct {
	GPUPowerMW float64 `plist:"gpu_power"`
	GPUUsage   float64 `plist:"gpu_usage"`
}

type memorySample struct {
	Pressure string  `plist:"memory_pressure"`
	UsedMB   float64 `plist:"used_memory_mb"`
}

// powerSample is the subset of a powermetrics plist document the observer
// reads
type powerSample struct {
	Processor processorSample `plist:"processor"`
	GPU       gpuSample       `plist:"gpu"`
	Memory    memorySample    `plist:"memory"`
}

// metricsScript cycles two idle samples, a power spike under memory
// pressure, and a recovery sample
var metricsScript = []powerSample{
	{
		Processor: processorSample{CPUPowerMW: 1150, CPUUsage: 8.5},
		GPU:       gpuSample{GPUPowerMW: 240, GPUUsage: 3.1},
		Memory:    memorySample{Pressure: "Normal", UsedMB: 9100},
	},
	{
		Processor: processorSample{CPUPowerMW: 1420, CPUUsage: 11.0},
		GPU:       gpuSample{GPUPowerMW: 310, GPUUsage: 4.4},
		Memory:    memorySample{Pressure: "Normal", UsedMB: 9180},
	},
	{
		Processor: processorSample{CPUPowerMW: 9400, CPUUsage: 86.0},
		GPU:       gpuSample{GPUPowerMW: 4600, GPUUsage: 72.0},
		Memory:    memorySample{Pressure: "Warning", UsedMB: 14200},
	},
	{
		Processor: processorSample{CPUPowerMW: 1260, CPUUsage: 9.2},
		GPU:       gpuSample{GPUPowerMW: 280, GPUUsage: 3.8},
		Memory:    memorySample{Pressure: "Normal", UsedMB: 9210},
	},
}

func emitMetricsPlist(i int) string {
	doc, _ := plist.MarshalIndent(metricsScript[i%len(metricsScript)], plist.XMLFormat, "\t")
	return string(doc)
}

// metricsRecord carries the field names of the vm_stat fallback script's
// JSON lines
type metricsRecord struct {
	Timestamp       string  `json:"timestamp"`
	CPUPowerMW      float64 `json:"cpu_power_mw"`
	CPUUsagePercent float64 `json:"cpu_usage_percent"`
	GPUPowerMW      float64 `json:"gpu_power_mw"`
	GPUUsagePercent float64 `json:"gpu_usage_percent"`
	MemoryPressure  string  `json:"memory_pressure"`
	MemoryUsedMB    float64 `json:"memory_used_mb"`
	EnergyImpact    float64 `json:"energy_impact"`
}

func emitMetricsJSON(i int) string {
	sample := metricsScript[i%len(metricsScript)]
	record := metricsRecord{
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
		CPUPowerMW:      sample.Processor.CPUPowerMW,
		CPUUsagePercent: sample.Processor.CPUUsage,
		GPUPowerMW:      sample.GPU.GPUPowerMW,
		GPUUsagePercent: sample.GPU.GPUUsage,
		MemoryPressure:  strings.ToLower(sample.Memory.Pressure),
		MemoryUsedMB:    sample.Memory.UsedMB,
		EnergyImpact:    sample.Processor.CPUPowerMW + sample.GPU.GPUPowerMW,
	}
	line, _ := json.Marshal(record)
	return string(line)
}

// diskScript cycles quiet rows and one saturated-disk row
var diskScript = []struct {
	kbPerTransfer float64
	tps           float64
	readMB        float64
	writeMB       float64
}{
	{kbPerTransfer: 24.50, tps: 12, readMB: 0.29, writeMB: 0.08},
	{kbPerTransfer: 31.75, tps: 48, readMB: 1.43, writeMB: 0.51},
	{kbPerTransfer: 64.00, tps: 840, readMB: 38.60, writeMB: 21.40},
	{kbPerTransfer: 28.10, tps: 21, readMB: 0.55, writeMB: 0.17},
}

func emitDisk(i int) string {
	// iostat reprints its headers between samples; the observer skips them
	if i%8 == 1 {
		return "          disk0\n  device    KB/t   tps   MB/s_read  MB/s_write"
	}
	row := diskScript[i%len(diskScript)]
	return fmt.Sprintf("disk0 %7.2f %5.0f %7.2f %7.2f", row.kbPerTransfer, row.tps, row.readMB, row.writeMB)
}
