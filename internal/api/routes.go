package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"streamcove/internal/observability/logging"
	"streamcove/internal/observability/metrics"
)

// RouterConfig wires the handler into the middleware stack.
type RouterConfig struct {
	Handler *Handler
	Token   string
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// NewRouter assembles the full HTTP surface: request IDs, request logging,
// and per-route metrics wrap every endpoint; the bearer token, when set,
// guards the job submission endpoints. Playback routes stay open because
// video players cannot attach headers.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := cfg.Handler
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	token := strings.TrimSpace(cfg.Token)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.handleHealthz)
	mux.Handle("/metrics", recorder.Handler())
	mux.Handle("/process-video", requireBearer(token, http.HandlerFunc(handler.handleProcessVideo)))
	mux.Handle("/extract-metadata", requireBearer(token, http.HandlerFunc(handler.handleExtractMetadata)))
	mux.HandleFunc("/progress/", handler.handleProgress)
	mux.HandleFunc("/stream/proxy/", handler.handleStreamProxy)

	var chained http.Handler = mux
	chained = metrics.HTTPMiddleware(recorder, chained)
	chained = logging.RequestLogger(logging.RequestLoggerConfig{Logger: logger})(chained)
	chained = requestIDMiddleware(logger, chained)
	return chained
}

// requireBearer rejects requests whose Authorization header does not carry
// the shared token. An empty token disables the check.
func requireBearer(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		if strings.TrimSpace(header[7:]) != token {
			writeError(w, http.StatusUnauthorized, errors.New("invalid bearer token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
