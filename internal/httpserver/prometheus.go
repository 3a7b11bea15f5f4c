package httpserver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aiconnect/ollama-metrics/internal/gpu"
)

const metricsNamespace = "ollama_metrics"

// GPUStatsSource exposes the counters kept by the GPU sampler.
type GPUStatsSource interface {
	Tool() gpu.Tool
	Stats() gpu.Stats
}

type gpuSamplerCollector struct {
	source  GPUStatsSource
	metrics []gpuSamplerMetric
}

type gpuSamplerMetric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	collect   func(stats gpu.Stats, tool gpu.Tool, emit func(value float64, labels ...string))
}

func newGPUSamplerCollector(source GPUStatsSource) prometheus.Collector {
	if source == nil {
		return nil
	}

	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "gpu", name),
			help,
			labels,
			nil,
		)
	}

	return &gpuSamplerCollector{
		source: source,
		metrics: []gpuSamplerMetric{
			{
				desc:      desc("tool_available", "Whether the GPU inventory tool was found at startup."),
				valueType: prometheus.GaugeValue,
				collect: func(_ gpu.Stats, tool gpu.Tool, emit func(float64, ...string)) {
					if tool.Available() {
						emit(1)
						return
					}
					emit(0)
				},
			},
			{
				desc:      desc("invocations_total", "Total GPU inventory tool invocations."),
				valueType: prometheus.CounterValue,
				collect: func(stats gpu.Stats, _ gpu.Tool, emit func(float64, ...string)) {
					emit(float64(stats.Invocations))
				},
			},
			{
				desc:      desc("invocation_failures_total", "GPU inventory invocations that produced no usable output, by failure kind.", "kind"),
				valueType: prometheus.CounterValue,
				collect: func(stats gpu.Stats, _ gpu.Tool, emit func(float64, ...string)) {
					for _, kind := range gpu.FailureKinds {
						emit(float64(stats.Failures[kind]), string(kind))
					}
				},
			},
			{
				desc:      desc("rows_skipped_total", "GPU inventory output lines discarded by the parser, by reason.", "reason"),
				valueType: prometheus.CounterValue,
				collect: func(stats gpu.Stats, _ gpu.Tool, emit func(float64, ...string)) {
					for _, reason := range gpu.SkipReasons {
						emit(float64(stats.Skipped[reason]), string(reason))
					}
				},
			},
		},
	}
}

func (c *gpuSamplerCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range c.metrics {
		ch <- metric.desc
	}
}

func (c *gpuSamplerCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	tool := c.source.Tool()
	for _, metric := range c.metrics {
		metric.collect(stats, tool, func(value float64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(metric.desc, metric.valueType, value, labels...)
		})
	}
}
