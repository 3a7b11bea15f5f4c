package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type ctxKey struct{}

const requestIDHeader = "X-Request-Id"

// responseRecorder captures the status and size of a response for the
// access log.
type responseRecorder struct {
	http.ResponseWriter
	code    int
	written int64
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.code == 0 {
		rr.code = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(p []byte) (int, error) {
	if rr.code == 0 {
		rr.code = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(p)
	rr.written += int64(n)
	return n, err
}

func (rr *responseRecorder) status() int {
	if rr.code == 0 {
		return http.StatusOK
	}
	return rr.code
}

// Flush keeps streaming pprof endpoints working through the wrapper.
func (rr *responseRecorder) Flush() {
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// withRequestLogging tags every request with a sequential id, stores a
// request-scoped logger in the context and logs the outcome.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.requestIDs.Add(1)
		logger := s.logger.With("req_id", id, "method", r.Method, "path", r.URL.Path)
		if r.RemoteAddr != "" {
			logger = logger.With("remote_addr", r.RemoteAddr)
		}
		w.Header().Set(requestIDHeader, strconv.FormatUint(id, 10))

		ctx := context.WithValue(r.Context(), ctxKey{}, logger)
		rec := &responseRecorder{ResponseWriter: w}
		began := time.Now()

		next.ServeHTTP(rec, r.WithContext(ctx))

		level := slog.LevelInfo
		if rec.status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "request complete",
			"status", rec.status(),
			"duration", time.Since(began),
			"bytes", rec.written,
		)
	})
}

func (s *Server) loggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return s.logger
}
