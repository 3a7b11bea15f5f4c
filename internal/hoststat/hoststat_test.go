package hoststat

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statFixture = `cpu  1000 0 500 8000 500 0 0 0 0 0
cpu0 1000 0 500 8000 500 0 0 0 0 0
intr 0
ctxt 0
btime 1700000000
processes 1
procs_running 1
procs_blocked 0
`

const meminfoFixture = `MemTotal:       16000000 kB
MemFree:         2000000 kB
MemAvailable:    4000000 kB
Buffers:          500000 kB
Cached:          1500000 kB
`

func newTestSampler(t *testing.T, stat, meminfo string) *Sampler {
	t.Helper()
	root := t.TempDir()
	if stat != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, "stat"), []byte(stat), 0o644))
	}
	if meminfo != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, "meminfo"), []byte(meminfo), 0o644))
	}
	sampler, err := New(root)
	require.NoError(t, err)
	return sampler
}

func TestCPUBusyPercent(t *testing.T) {
	t.Parallel()

	before := procfs.CPUStat{User: 10, System: 5, Idle: 80, Iowait: 5}
	after := procfs.CPUStat{User: 40, System: 15, Idle: 120, Iowait: 25, Guest: 100}

	// total delta 100, idle delta 60
	assert.InDelta(t, 40.0, cpuBusyPercent(before, after), 1e-9)
}

func TestCPUBusyPercentZeroDelta(t *testing.T) {
	t.Parallel()

	stat := procfs.CPUStat{User: 10, Idle: 90}
	assert.Equal(t, 0.0, cpuBusyPercent(stat, stat))
}

func TestCPUPercentUnchangedCounters(t *testing.T) {
	t.Parallel()

	sampler := newTestSampler(t, statFixture, meminfoFixture)
	value, err := sampler.CPUPercent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)
}

func TestCPUPercentHonoursContext(t *testing.T) {
	t.Parallel()

	sampler := newTestSampler(t, statFixture, meminfoFixture)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sampler.CPUPercent(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCPUPercentMissingStat(t *testing.T) {
	t.Parallel()

	sampler := newTestSampler(t, "", meminfoFixture)
	_, err := sampler.CPUPercent(context.Background(), 0)
	assert.Error(t, err)
}

func TestRAMPercent(t *testing.T) {
	t.Parallel()

	sampler := newTestSampler(t, statFixture, meminfoFixture)
	value, err := sampler.RAMPercent()
	require.NoError(t, err)
	assert.InDelta(t, 75.0, value, 1e-9)
}

func TestRAMPercentWithoutMemAvailable(t *testing.T) {
	t.Parallel()

	sampler := newTestSampler(t, statFixture, "MemTotal: 1000 kB\nMemFree: 100 kB\nBuffers: 50 kB\nCached: 250 kB\n")
	value, err := sampler.RAMPercent()
	require.NoError(t, err)
	assert.InDelta(t, 60.0, value, 1e-9)
}

func TestRAMPercentMissingTotal(t *testing.T) {
	t.Parallel()

	sampler := newTestSampler(t, statFixture, "MemFree: 100 kB\n")
	_, err := sampler.RAMPercent()
	assert.ErrorIs(t, err, ErrNoMemTotal)
}

func TestNewMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := New(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
