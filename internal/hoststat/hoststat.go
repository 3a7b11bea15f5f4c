// Package hoststat samples host CPU and memory load from procfs.
package hoststat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/procfs"
)

// DefaultCPUInterval is the window over which CPU busy time is measured.
const DefaultCPUInterval = time.Second

// ErrNoMemTotal is returned when /proc/meminfo carries no usable MemTotal.
var ErrNoMemTotal = errors.New("meminfo: MemTotal missing or zero")

// Sampler reads CPU and memory counters from a proc filesystem.
type Sampler struct {
	fs procfs.FS
}

// New opens the proc filesystem mounted at procRoot.
func New(procRoot string) (*Sampler, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, fmt.Errorf("open procfs %q: %w", procRoot, err)
	}
	return &Sampler{fs: fs}, nil
}

// CPUPercent blocks for interval and returns the share of non-idle CPU time
// observed across all cores during that window.
func (s *Sampler) CPUPercent(ctx context.Context, interval time.Duration) (float64, error) {
	before, err := s.fs.Stat()
	if err != nil {
		return 0, fmt.Errorf("read cpu stat: %w", err)
	}

	if interval > 0 {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
	}

	after, err := s.fs.Stat()
	if err != nil {
		return 0, fmt.Errorf("read cpu stat: %w", err)
	}

	return cpuBusyPercent(before.CPUTotal, after.CPUTotal), nil
}

// RAMPercent returns the share of physical memory in use.
func (s *Sampler) RAMPercent() (float64, error) {
	info, err := s.fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("read meminfo: %w", err)
	}
	return memUsedPercent(info)
}

func cpuBusyPercent(a, b procfs.CPUStat) float64 {
	idle := (b.Idle + b.Iowait) - (a.Idle + a.Iowait)
	total := cpuTotal(b) - cpuTotal(a)
	if total <= 0 {
		return 0
	}
	busy := total - idle
	if busy < 0 {
		busy = 0
	}
	return busy / total * 100
}

// guest time is already accounted in user and nice
func cpuTotal(s procfs.CPUStat) float64 {
	return s.User + s.Nice + s.System + s.Idle + s.Iowait + s.IRQ + s.SoftIRQ + s.Steal
}

func memUsedPercent(info procfs.Meminfo) (float64, error) {
	if info.MemTotal == nil || *info.MemTotal == 0 {
		return 0, ErrNoMemTotal
	}
	total := float64(*info.MemTotal)

	var available float64
	if info.MemAvailable != nil {
		available = float64(*info.MemAvailable)
	} else {
		available = float64(deref(info.MemFree) + deref(info.Buffers) + deref(info.Cached))
	}

	used := total - available
	if used < 0 {
		used = 0
	}
	return used / total * 100, nil
}

func deref(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}
