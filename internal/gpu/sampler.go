package gpu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds a single inventory invocation.
const DefaultTimeout = 5 * time.Second

// Sampler invokes the inventory tool and parses its output. Every failure
// degrades to an empty result.
type Sampler struct {
	tool    Tool
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger

	invocations atomic.Uint64
	failures    [len(FailureKinds)]atomic.Uint64
	skipped     [len(SkipReasons)]atomic.Uint64
}

// NewSampler builds a Sampler for tool. A nil runner runs real processes.
func NewSampler(tool Tool, runner Runner, timeout time.Duration, logger *slog.Logger) *Sampler {
	if runner == nil {
		runner = ExecRunner{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sampler{
		tool:    tool,
		runner:  runner,
		timeout: timeout,
		logger:  logger,
	}
}

// Tool returns the capability the sampler was built with.
func (s *Sampler) Tool() Tool {
	return s.tool
}

// Sample returns the current GPU records in tool order. Cancellation of ctx
// does not abort a running invocation; only the timeout does.
func (s *Sampler) Sample(ctx context.Context) (records []Record) {
	if !s.tool.Available() {
		return make([]Record, 0)
	}

	defer func() {
		if r := recover(); r != nil {
			s.countFailure(FailurePanic)
			s.logger.Error("gpu sampling panicked", "panic", fmt.Sprint(r))
			records = make([]Record, 0)
		}
	}()

	s.invocations.Add(1)

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := time.Now()
	out, err := s.runner.Run(runCtx, s.tool.Path, QueryArgs()...)
	if err != nil {
		kind := classifyFailure(runCtx, err)
		s.countFailure(kind)
		s.logger.Error("gpu inventory invocation failed",
			"tool", s.tool.Path,
			"kind", kind,
			"duration", time.Since(start),
			"err", err,
		)
		return make([]Record, 0)
	}

	result := ParseOutput(out)
	for _, skip := range result.Skipped {
		s.countSkip(skip.Reason)
		s.logger.Warn("skipped gpu inventory line", "line", skip.Line, "reason", skip.Reason, "err", skip.Err)
	}

	s.logger.Debug("gpu inventory sampled", "gpus", len(result.Records), "skipped", len(result.Skipped), "duration", time.Since(start))
	return result.Records
}

// Stats is a point-in-time copy of the sampler counters.
type Stats struct {
	Invocations uint64
	Failures    map[FailureKind]uint64
	Skipped     map[SkipReason]uint64
}

// Stats returns the counters accumulated since construction.
func (s *Sampler) Stats() Stats {
	stats := Stats{
		Invocations: s.invocations.Load(),
		Failures:    make(map[FailureKind]uint64, len(FailureKinds)),
		Skipped:     make(map[SkipReason]uint64, len(SkipReasons)),
	}
	for i, kind := range FailureKinds {
		stats.Failures[kind] = s.failures[i].Load()
	}
	for i, reason := range SkipReasons {
		stats.Skipped[reason] = s.skipped[i].Load()
	}
	return stats
}

func (s *Sampler) countFailure(kind FailureKind) {
	if i := slices.Index(FailureKinds[:], kind); i >= 0 {
		s.failures[i].Add(1)
	}
}

func (s *Sampler) countSkip(reason SkipReason) {
	if i := slices.Index(SkipReasons[:], reason); i >= 0 {
		s.skipped[i].Add(1)
	}
}
