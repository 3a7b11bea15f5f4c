package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aiconnect/ollama-metrics/internal/app"
	"github.com/aiconnect/ollama-metrics/internal/config"
	"github.com/aiconnect/ollama-metrics/internal/gpu"
)

type options struct {
	cfg        config.Config
	skipSample bool
	jsonOutput bool
	verbose    bool
}

func parseFlags(defaults config.Config) options {
	opts := options{cfg: defaults}
	flag.StringVar(&opts.cfg.SysfsRoot, "sysfs", defaults.SysfsRoot, "Path to sysfs root")
	flag.StringVar(&opts.cfg.ProcRoot, "proc", defaults.ProcRoot, "Path to procfs root")
	flag.StringVar(&opts.cfg.GPUTool, "tool", defaults.GPUTool, "GPU inventory command name or path")
	flag.DurationVar(&opts.cfg.GPUTimeout, "timeout", defaults.GPUTimeout, "GPU inventory invocation timeout")
	flag.DurationVar(&opts.cfg.CPUSampleInterval, "interval", defaults.CPUSampleInterval, "CPU sampling window")
	flag.BoolVar(&opts.skipSample, "discover-only", false, "List display devices without collecting a snapshot")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Emit the result as JSON")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	flag.Parse()
	return opts
}

func main() {
	defaults, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(2)
	}
	opts := parseFlags(defaults)

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	services, err := app.Build(logger, opts.cfg)
	if err != nil {
		logger.Error("initialise samplers", "err", err)
		os.Exit(1)
	}

	report := struct {
		Tool     string       `json:"tool"`
		ToolPath string       `json:"tool_path,omitempty"`
		Devices  []gpu.Device `json:"devices"`
		Snapshot any          `json:"snapshot,omitempty"`
	}{
		Tool:     services.Tool.Name,
		ToolPath: services.Tool.Path,
		Devices:  append([]gpu.Device{}, services.Devices...),
	}

	if !opts.skipSample {
		ctx, cancel := context.WithTimeout(context.Background(), opts.cfg.CPUSampleInterval+opts.cfg.GPUTimeout+time.Second)
		defer cancel()
		snap, err := services.Collector.Collect(ctx)
		if err != nil {
			logger.Error("collect snapshot", "err", err)
			os.Exit(1)
		}
		report.Snapshot = snap
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Error("encode probe output", "err", err)
			os.Exit(1)
		}
		return
	}

	if services.Tool.Available() {
		fmt.Printf("GPU tool: %s (%s)\n", services.Tool.Name, services.Tool.Path)
	} else {
		fmt.Printf("GPU tool: %s (not found)\n", services.Tool.Name)
	}

	if len(services.Devices) == 0 {
		fmt.Println("No display devices detected")
	} else {
		fmt.Println("Display devices:")
	}
	for _, device := range services.Devices {
		fmt.Printf("- %s [%s:%s] %s %s (driver: %s)\n", device.Address, device.VendorID, device.DeviceID, device.Vendor, device.Name, device.Driver)
	}

	if report.Snapshot == nil {
		return
	}

	fmt.Println()
	fmt.Printf("Snapshot at %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Println(strings.Repeat("-", 60))
	data, err := json.MarshalIndent(report.Snapshot, "", "  ")
	if err != nil {
		logger.Error("encode snapshot", "err", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
