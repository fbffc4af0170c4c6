package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"streamcove/internal/observability/logging"
)

type idGenerator func() string

func requestIDMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return requestIDMiddlewareWithGenerator(logger, newRequestID, next)
}

func requestIDMiddlewareWithGenerator(logger *slog.Logger, generator idGenerator, next http.Handler) http.Handler {
	if generator == nil {
		generator = newRequestID
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" {
			requestID = generator()
		}

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		if jobID := jobIDFromPath(r.URL.Path); jobID != "" {
			ctx = logging.ContextWithJobID(ctx, jobID)
		}
		ctxLogger := logging.WithContext(ctx, logger)
		ctx = logging.ContextWithLogger(ctx, ctxLogger)

		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// jobIDFromPath pulls the job or stream identifier out of the two path
// shapes that carry one, so request logs can be correlated with pipeline
// logs without extra headers.
func jobIDFromPath(path string) string {
	for _, prefix := range []string{"/progress/", "/stream/proxy/"} {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
		id, _, _ := strings.Cut(rest, "/")
		return id
	}
	return ""
}

func newRequestID() string {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err == nil {
		return hex.EncodeToString(buffer[:])
	}
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
