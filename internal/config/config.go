package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration sourced from environment variables.
type Config struct {
	ListenAddr        string
	LogLevel          slog.Level
	GPUTool           string
	GPUTimeout        time.Duration
	CPUSampleInterval time.Duration
	ProcRoot          string
	SysfsRoot         string
	EnablePrometheus  bool
	EnablePprof       bool
}

// Default returns the configuration used when no overrides are set.
func Default() Config {
	return Config{
		ListenAddr:        ":11434",
		LogLevel:          slog.LevelInfo,
		GPUTool:           "nvidia-smi",
		GPUTimeout:        5 * time.Second,
		CPUSampleInterval: time.Second,
		ProcRoot:          "/proc",
		SysfsRoot:         "/sys",
		EnablePrometheus:  false,
		EnablePprof:       false,
	}
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Default()

	if value := strings.TrimSpace(os.Getenv("APP_LISTEN_ADDR")); value != "" {
		cfg.ListenAddr = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_LOG_LEVEL")); value != "" {
		level, err := parseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	if value := strings.TrimSpace(os.Getenv("APP_GPU_TOOL")); value != "" {
		cfg.GPUTool = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_GPU_TIMEOUT")); value != "" {
		timeout, err := parsePositiveDuration("APP_GPU_TIMEOUT", value)
		if err != nil {
			return Config{}, err
		}
		cfg.GPUTimeout = timeout
	}

	if value := strings.TrimSpace(os.Getenv("APP_CPU_SAMPLE_INTERVAL")); value != "" {
		interval, err := parsePositiveDuration("APP_CPU_SAMPLE_INTERVAL", value)
		if err != nil {
			return Config{}, err
		}
		cfg.CPUSampleInterval = interval
	}

	if value := strings.TrimSpace(os.Getenv("APP_PROC_ROOT")); value != "" {
		cfg.ProcRoot = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_SYSFS_ROOT")); value != "" {
		cfg.SysfsRoot = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_ENABLE_PROMETHEUS")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_ENABLE_PROMETHEUS: %w", err)
		}
		cfg.EnablePrometheus = enabled
	}

	if value := strings.TrimSpace(os.Getenv("APP_ENABLE_PPROF")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_ENABLE_PPROF: %w", err)
		}
		cfg.EnablePprof = enabled
	}

	return cfg, nil
}

func parsePositiveDuration(name, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be > 0", name)
	}
	return duration, nil
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
