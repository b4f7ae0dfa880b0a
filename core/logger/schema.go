package logger

import (
	"log/slog"
	"strings"
)

// levelName buckets custom levels onto the four names the log schema allows.
func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

// normalizeStatus lowercases status and folds the common spellings onto the
// canonical values: ok, fail, skip, retry, dropped, fallback, cancelled.
func normalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch s {
	case "success", "done":
		return "ok"
	case "error", "failed", "failure":
		return "fail"
	case "skipped":
		return "skip"
	case "canceled":
		return "cancelled"
	}
	return s
}

// defaultKeyOrder pins correlation and bot fields to the front of a line.
var defaultKeyOrder = []string{
	// envelope
	"ts", "level", "component", "event", "status",
	// correlation
	"rid", "rid_full", "ts_unix_nano", "user_id", "username", "channel", "handler", "platform",
	// http
	"method", "path", "http_code",
	// conversation
	"state", "state_before", "category", "request_id", "duration_ms",
	// knowledge base and sessions
	"count", "categories", "sessions", "path_kb", "payload",
	// transports and storage
	"mode", "listen", "public_url", "driver", "db", "host", "port", "action",
	// failures
	"err", "err_kind", "retryable", "attempt", "attempts", "backoff_ms",
}
