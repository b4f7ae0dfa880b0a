package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/m3rciful/synobot/core/logger"
)

// requestContext assigns a request id (the inbound X-Request-Id or a fresh
// UUID) and attaches the HTTP logger to the request context.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(middleware.RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, rid)
		ctx = logger.WithRID(ctx, rid)
		ctx = logger.WithHandler(ctx, r.Method+" "+r.URL.Path)
		ctx = logger.WithLogger(ctx, logger.HTTP)
		w.Header().Set(middleware.RequestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog writes one line per request. Health probes log at debug.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		level := slog.LevelInfo
		switch {
		case code >= 500:
			level = slog.LevelError
		case code >= 400:
			level = slog.LevelWarn
		case r.URL.Path == "/health" || r.URL.Path == "/api/health":
			level = slog.LevelDebug
		}
		status := "ok"
		if code >= 400 {
			status = "fail"
		}
		logger.HTTP.LogAttrs(r.Context(), level, "http.request",
			slog.String("status", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("http_code", code),
			slog.String("host", r.RemoteAddr),
			slog.Duration("duration", logger.Took(start)),
		)
	})
}

// recoverer turns handler panics into a JSON 500 and logs the stack.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.HTTP.LogAttrs(r.Context(), slog.LevelError, "http.panic",
				slog.String("status", "fail"),
				slog.Any("err", rec),
				slog.String("stack", string(debug.Stack())),
			)
			writeError(w, http.StatusInternalServerError, "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}
