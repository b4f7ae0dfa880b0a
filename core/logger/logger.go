package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/synobot/core/buildinfo"
	coreconfig "github.com/m3rciful/synobot/core/config"
)

var (
	initOnce   sync.Once
	shutdownMu sync.Mutex
	shutdowned bool

	logWriter  *asyncWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the base logger; component loggers below derive from it.
	L = slog.New(slog.NewTextHandler(io.Discard, nil))

	// HTTP logs inbound webhook and API traffic.
	HTTP = L
	// KB logs knowledge base loading and reloads.
	KB = L
	// SESS logs session store lifecycle events.
	SESS = L
	// CONV logs conversation engine turns.
	CONV = L
	// STATS logs statistics recording.
	STATS = L
	// DB logs database-related events.
	DB = L
	// MIG logs database migration events.
	MIG = L
	// SYNO logs Synology Chat delivery.
	SYNO = L
	// TG logs Telegram transport events.
	TG = L
)

// settings is the logging configuration resolved from coreconfig.LoggingConfig.
type settings struct {
	format    logFormat
	keyOrder  []string
	level     slog.Level
	profile   string
	platform  string
	sampleNum int
	sampleDen int
	trace     bool
	// file is the log file path; empty writes to stdout only.
	file string
}

func resolveSettings(cfg *coreconfig.Config) settings {
	s := settings{
		format:    formatJSON,
		keyOrder:  append([]string(nil), defaultKeyOrder...),
		level:     slog.LevelInfo,
		profile:   "prod",
		sampleNum: 1,
		sampleDen: 50,
		trace:     isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE")),
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	s.platform = cfg.App.Platform

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.keyOrder = order
		}
	}

	if spec := strings.TrimSpace(lc.DebugSample); spec != "" {
		switch num, den := parseRatioSpec(spec); {
		case num == 0 && den == 0:
			s.sampleNum, s.sampleDen = 0, 0
		case num > 0 && den > 0:
			s.sampleNum, s.sampleDen = num, den
		}
	}

	if file := strings.TrimSpace(lc.BotFile); file != "" {
		if dir := strings.TrimSpace(lc.Dir); dir != "" {
			file = filepath.Join(dir, file)
		}
		s.file = file
	}
	return s
}

// InitLogger configures the global structured logger. Only the first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		s := resolveSettings(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.sampleNum, s.sampleDen)
		traceOverride = s.trace

		outputs := []io.Writer{os.Stdout}
		if s.file != "" {
			f, err := openLogFile(s.file)
			if err != nil {
				initErr = err
				return
			}
			outputs = append(outputs, f)
			logClosers = append(logClosers, f)
		}
		logWriter = newAsyncWriter(outputs, 64*1024)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   s.format,
			keyOrder: s.keyOrder,
			platform: s.platform,
		}))
		slog.SetDefault(L)

		wireComponents()
		logStartup(cfg, s)
	})
	return initErr
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

func wireComponents() {
	HTTP = Component("http")
	KB = Component("kb")
	SESS = Component("session")
	CONV = Component("conversation")
	STATS = Component("stats")
	DB = Component("db")
	MIG = Component("db.migrate")
	SYNO = Component("syno")
	TG = Component("tg")
}

func logStartup(cfg *coreconfig.Config, s settings) {
	attrs := []slog.Attr{
		slog.String("component", "app"),
		slog.String("status", "ok"),
		slog.String("go_version", runtime.Version()),
		slog.String("build", buildinfo.Summary()),
		slog.String("cfg_profile", s.profile),
		slog.String("log_format", string(s.format)),
	}
	if cfg != nil {
		attrs = append(attrs, slog.String("bot_name", cfg.App.Name))
	}
	L.LogAttrs(context.Background(), slog.LevelInfo, "startup", attrs...)
}

// Shutdown flushes buffered log output and closes opened sinks.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutdowned {
		return nil
	}
	shutdowned = true

	var errs []error
	if logWriter != nil {
		errs = append(errs, logWriter.Flush(), logWriter.Close())
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// LogEvent logs attrs under the given event name using the logger from ctx when logg is nil.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	logg.LogAttrs(ctx, level, event, attrs...)
}

// Component constructs a logger scoped to the provided component attribute.
func Component(name string) *slog.Logger {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return L
	}
	return L.With("component", trimmed)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelError, event, attrs...)
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether debug-level details should be logged for high-volume events.
func ShouldSampleDebug() bool {
	if traceOverride {
		return true
	}
	return debugSampler.Allow()
}
