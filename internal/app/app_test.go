package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiconnect/ollama-metrics/internal/config"
	"github.com/aiconnect/ollama-metrics/internal/gpu"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	procRoot := t.TempDir()
	writeFile(t, filepath.Join(procRoot, "stat"), "cpu  100 0 50 800 50 0 0 0 0 0\n")
	writeFile(t, filepath.Join(procRoot, "meminfo"), "MemTotal: 1000 kB\nMemAvailable: 250 kB\n")

	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ProcRoot = procRoot
	cfg.SysfsRoot = t.TempDir()
	cfg.GPUTool = filepath.Join(t.TempDir(), "nvidia-smi")
	cfg.CPUSampleInterval = 10 * time.Millisecond
	return cfg
}

func TestBuildWithoutGPUTool(t *testing.T) {
	t.Parallel()

	services, err := Build(discardLogger(), testConfig(t))
	require.NoError(t, err)

	assert.False(t, services.Tool.Available())
	assert.Empty(t, services.Devices)

	snap, err := services.Collector.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 75.0, snap.RAMPercent)
	assert.Zero(t, snap.GPUCount)
	assert.NotNil(t, snap.GPUs)
	assert.Zero(t, services.GPU.Stats().Invocations)
}

func TestBuildRejectsMissingProcRoot(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.ProcRoot = filepath.Join(t.TempDir(), "absent")

	_, err := Build(discardLogger(), cfg)
	assert.Error(t, err)
}

func TestWarnUnmonitoredNVIDIADevices(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	devices := []gpu.Device{
		{Address: "0000:03:00.0", VendorID: "1a03"},
		{Address: "0000:3b:00.0", VendorID: gpu.VendorNVIDIA},
	}

	warnUnmonitored(logger, gpu.Tool{Name: "nvidia-smi"}, devices)
	assert.Contains(t, buf.String(), "0000:3b:00.0")
	assert.NotContains(t, buf.String(), "0000:03:00.0")

	buf.Reset()
	warnUnmonitored(logger, gpu.Tool{Name: "nvidia-smi", Path: "/usr/bin/nvidia-smi"}, devices)
	assert.Empty(t, buf.String())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, discardLogger(), cfg)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
