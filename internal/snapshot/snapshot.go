// Package snapshot assembles the host utilization report served on /metrics.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aiconnect/ollama-metrics/internal/gpu"
)

// Snapshot is a point-in-time view of host CPU, memory and GPU load.
type Snapshot struct {
	CPUPercent               float64      `json:"cpu_percent"`
	RAMPercent               float64      `json:"ram_percent"`
	GPUCount                 int          `json:"gpu_count"`
	GPUAvgUtilizationPercent float64      `json:"gpu_avg_utilization_percent"`
	GPUAvgMemoryPercent      float64      `json:"gpu_avg_memory_percent"`
	GPUs                     []gpu.Record `json:"gpus"`
	Timestamp                float64      `json:"timestamp"`
}

// HostSampler measures host CPU and memory utilization.
type HostSampler interface {
	CPUPercent(ctx context.Context, interval time.Duration) (float64, error)
	RAMPercent() (float64, error)
}

// GPUSampler returns the current GPU records. It must not fail.
type GPUSampler interface {
	Sample(ctx context.Context) []gpu.Record
}

// Collector builds snapshots on demand. It holds no per-request state and
// may be used concurrently.
type Collector struct {
	host        HostSampler
	gpus        GPUSampler
	cpuInterval time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Option customises a Collector.
type Option func(*Collector)

// WithClock overrides the wall clock used for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCollector wires host and GPU samplers into a Collector.
func NewCollector(host HostSampler, gpus GPUSampler, cpuInterval time.Duration, logger *slog.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Collector{
		host:        host,
		gpus:        gpus,
		cpuInterval: cpuInterval,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect samples the host and GPUs and returns a fresh snapshot. Only host
// sampling failures are reported; GPU problems surface as an empty list.
func (c *Collector) Collect(ctx context.Context) (Snapshot, error) {
	gpuCh := make(chan []gpu.Record, 1)
	go func() {
		gpuCh <- c.sampleGPUs(ctx)
	}()

	cpu, err := c.host.CPUPercent(ctx, c.cpuInterval)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sample cpu: %w", err)
	}

	ram, err := c.host.RAMPercent()
	if err != nil {
		return Snapshot{}, fmt.Errorf("sample memory: %w", err)
	}

	records := <-gpuCh
	if records == nil {
		records = []gpu.Record{}
	}

	snap := Snapshot{
		CPUPercent: gpu.Round2(cpu),
		RAMPercent: gpu.Round2(ram),
		GPUCount:   len(records),
		GPUs:       records,
		Timestamp:  unixSeconds(c.now()),
	}

	if len(records) > 0 {
		var utilSum, memSum float64
		for _, record := range records {
			utilSum += record.UtilizationPercent
			memSum += record.MemoryPercent
		}
		count := float64(len(records))
		snap.GPUAvgUtilizationPercent = gpu.Round2(utilSum / count)
		snap.GPUAvgMemoryPercent = gpu.Round2(memSum / count)
	}

	c.logger.Debug("snapshot collected",
		"cpu_percent", snap.CPUPercent,
		"ram_percent", snap.RAMPercent,
		"gpu_count", snap.GPUCount,
	)
	return snap, nil
}

func (c *Collector) sampleGPUs(ctx context.Context) []gpu.Record {
	if c.gpus == nil {
		return nil
	}
	return c.gpus.Sample(ctx)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}
