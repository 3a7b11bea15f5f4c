package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aiconnect/ollama-metrics/internal/config"
	"github.com/aiconnect/ollama-metrics/internal/snapshot"
	"github.com/aiconnect/ollama-metrics/internal/version"
)

const readHeaderTimeout = 5 * time.Second

// statusClientClosedRequest is logged when the client goes away before the
// snapshot is ready.
const statusClientClosedRequest = 499

// Collector produces one snapshot per call.
type Collector interface {
	Collect(ctx context.Context) (snapshot.Snapshot, error)
}

// Server wraps the HTTP surface area of the application.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	collector  Collector
	gpuStats   GPUStatsSource

	collectDuration prometheus.Histogram
	collectTotal    atomic.Uint64
	collectFailures atomic.Uint64
	requestIDs      atomic.Uint64
}

// New assembles a Server with its handlers. gpuStats may be nil.
func New(cfg config.Config, logger *slog.Logger, collector Collector, gpuStats GPUStatsSource) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		gpuStats:  gpuStats,
		collectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "snapshot",
			Name:      "duration_seconds",
			Help:      "Time spent building a /metrics snapshot.",
			Buckets:   []float64{0.5, 1, 1.25, 1.5, 2, 3, 5, 7.5, 10},
		}),
	}

	router := mux.NewRouter()
	router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	if cfg.EnablePrometheus {
		s.registerPrometheus(router)
	}
	if cfg.EnablePprof {
		registerPprof(router)
	}

	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.withRequestLogging(router),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Handler returns the root handler including request logging.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving HTTP until shutdown is requested.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("listener stopped")
	return nil
}

// Shutdown attempts a graceful shutdown within the supplied context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	logger := s.loggerFromContext(r.Context())

	start := time.Now()
	snap, err := s.collector.Collect(r.Context())
	s.collectDuration.Observe(time.Since(start).Seconds())
	s.collectTotal.Add(1)
	if err != nil && errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		logger.Debug("client went away during snapshot collection", "err", err)
		w.WriteHeader(statusClientClosedRequest)
		return
	}
	if err != nil {
		s.collectFailures.Add(1)
		logger.Error("snapshot collection failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	body, err := json.Marshal(snap)
	if err != nil {
		s.collectFailures.Add(1)
		logger.Error("failed to encode snapshot", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		logger.Warn("failed to write snapshot response", "err", err)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func (s *Server) registerPrometheus(router *mux.Router) {
	registry := prometheus.NewRegistry()
	info := version.Current()
	collectors := []prometheus.Collector{
		s.collectDuration,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "snapshot",
			Name:      "requests_total",
			Help:      "Total snapshot collections attempted.",
		}, func() float64 {
			return float64(s.collectTotal.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "snapshot",
			Name:      "failures_total",
			Help:      "Total snapshot collections answered with 500.",
		}, func() float64 {
			return float64(s.collectFailures.Load())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "build_info",
			Help:      "Build metadata of the running binary.",
			ConstLabels: prometheus.Labels{
				"version": info.Version,
				"commit":  info.Commit,
				"go":      info.GoVersion,
			},
		}, func() float64 {
			return 1
		}),
	}

	if gpuCollector := newGPUSamplerCollector(s.gpuStats); gpuCollector != nil {
		collectors = append(collectors, gpuCollector)
	}

	for _, collector := range collectors {
		registry.MustRegister(collector)
	}

	router.Handle("/prometheus", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

func registerPprof(router *mux.Router) {
	router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	router.HandleFunc("/debug/pprof/profile", pprof.Profile)
	router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	router.HandleFunc("/debug/pprof/trace", pprof.Trace)
	router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
}
