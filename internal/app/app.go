// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aiconnect/ollama-metrics/internal/config"
	"github.com/aiconnect/ollama-metrics/internal/gpu"
	"github.com/aiconnect/ollama-metrics/internal/hoststat"
	"github.com/aiconnect/ollama-metrics/internal/httpserver"
	"github.com/aiconnect/ollama-metrics/internal/snapshot"
	"github.com/aiconnect/ollama-metrics/internal/version"
)

const shutdownTimeout = 10 * time.Second

// Services holds the components shared by the server and the probe CLI.
type Services struct {
	Tool      gpu.Tool
	GPU       *gpu.Sampler
	Host      *hoststat.Sampler
	Collector *snapshot.Collector
	Devices   []gpu.Device
}

// Build detects capabilities once and assembles the samplers. Missing GPU
// tooling is logged and tolerated; an unusable procfs is not.
func Build(baseLogger *slog.Logger, cfg config.Config) (*Services, error) {
	appLogger := baseLogger.With("component", "app")

	host, err := hoststat.New(cfg.ProcRoot)
	if err != nil {
		return nil, fmt.Errorf("init host sampler: %w", err)
	}

	tool := gpu.DetectTool(cfg.GPUTool)
	if tool.Available() {
		appLogger.Info("gpu inventory tool found", "tool", tool.Name, "path", tool.Path)
	} else {
		appLogger.Warn("gpu inventory tool unavailable, reporting zero GPUs", "tool", tool.Name)
	}

	devices := discoverDevices(baseLogger, cfg.SysfsRoot)
	warnUnmonitored(appLogger, tool, devices)

	sampler := gpu.NewSampler(tool, nil, cfg.GPUTimeout, baseLogger.With("component", "gpu_sampler"))
	collector := snapshot.NewCollector(host, sampler, cfg.CPUSampleInterval, baseLogger.With("component", "snapshot"))

	return &Services{
		Tool:      tool,
		GPU:       sampler,
		Host:      host,
		Collector: collector,
		Devices:   devices,
	}, nil
}

func discoverDevices(baseLogger *slog.Logger, sysfsRoot string) []gpu.Device {
	logger := baseLogger.With("component", "gpu_discovery")

	names, err := gpu.LoadNames()
	if err != nil {
		logger.Debug("pci name database unavailable", "err", err)
	}

	devices, err := gpu.Discover(sysfsRoot, names, logger)
	if err != nil {
		logger.Warn("pci display device discovery failed", "err", err)
		return nil
	}
	for _, device := range devices {
		logger.Info("display device",
			"pci", device.Address,
			"vendor", device.Vendor,
			"name", device.Name,
			"driver", device.Driver,
		)
	}
	return devices
}

func warnUnmonitored(logger *slog.Logger, tool gpu.Tool, devices []gpu.Device) {
	if tool.Available() {
		return
	}
	var addresses []string
	for _, device := range devices {
		if device.IsNVIDIA() {
			addresses = append(addresses, device.Address)
		}
	}
	if len(addresses) > 0 {
		logger.Warn("NVIDIA devices present but the inventory tool is missing; they will not be reported",
			"tool", tool.Name,
			"devices", addresses,
		)
	}
}

// Run bootstraps the application lifecycle.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	appLogger := baseLogger.With("component", "app")
	appLogger.Info("starting", version.Current().LogAttrs()...)

	services, err := Build(baseLogger, cfg)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg, baseLogger.With("component", "http"), services.Collector, services.GPU)

	appLogger.Info("starting HTTP server",
		"listen_addr", cfg.ListenAddr,
		"prometheus", cfg.EnablePrometheus,
		"pprof", cfg.EnablePprof,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		appLogger.Info("shutdown initiated", "reason", ctx.Err())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http shutdown: %w", err)
		}

		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		appLogger.Info("shutdown complete")
		return nil
	}
}
