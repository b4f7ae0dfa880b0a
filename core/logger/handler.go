package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
	// platform tags every line when set.
	platform string
}

// structuredHandler renders records as one flat line (JSON or key=value)
// with a stable key order so log lines stay greppable.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

// Enabled reports whether the handler allows processing the provided level.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

// Handle formats the record and hands the line to the async writer.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	line := h.assemble(ctx, r)

	var out []byte
	if h.cfg.format == formatJSON {
		var err error
		if out, err = line.encodeJSON(h.cfg.keyOrder); err != nil {
			return err
		}
	} else {
		out = line.encodeKV(h.cfg.keyOrder)
	}
	return h.cfg.writer.Write(append(out, '\n'))
}

func (h *structuredHandler) assemble(ctx context.Context, r slog.Record) fields {
	isJSON := h.cfg.format == formatJSON
	ts := r.Time.UTC()
	line := fields{
		"ts":    ts.Truncate(time.Millisecond).Format(timeFormatMillis),
		"level": levelName(r.Level),
	}
	if isJSON {
		line["ts_unix_nano"] = ts.UnixNano()
	}

	for _, a := range h.attrs {
		line.add("", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		line.add(h.prefix, a)
		return true
	})

	if ctx != nil {
		line.setDefault("rid", RIDFrom(ctx))
		line.setDefault("user_id", UserIDFrom(ctx))
		line.setDefault("channel", ChannelFrom(ctx))
		line.setDefault("handler", HandlerFrom(ctx))
	}
	line.setDefault("platform", h.cfg.platform)

	if rid := line.str("rid"); rid != "" {
		if short := CompactRID(rid); short != "" && short != rid {
			if isJSON {
				line.setDefault("rid_full", rid)
			}
			line["rid"] = short
		}
	}
	if line.str("event") == "" {
		event := r.Message
		if event == "" {
			event = "unknown"
		}
		line["event"] = event
	}
	line.setDefault("component", "app")
	if s := line.str("status"); s != "" {
		line["status"] = normalizeStatus(s)
	}

	line.redact()
	line.prune()
	return line
}

// WithAttrs returns a copy of the handler carrying attrs under the current group.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	if h.prefix != "" {
		attrs = []slog.Attr{{Key: h.prefix, Value: slog.GroupValue(attrs...)}}
	}
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a copy of the handler that prefixes later keys with name.
func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// fields is one log line before encoding.
type fields map[string]any

// add flattens attr under prefix. Durations are stored as whole milliseconds
// under a key ending in _ms.
func (f fields) add(prefix string, attr slog.Attr) {
	key := joinKey(prefix, attr.Key)
	val := attr.Value.Resolve()
	if val.Kind() == slog.KindGroup {
		for _, child := range val.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}

	switch val.Kind() {
	case slog.KindString:
		f[key] = strings.TrimSpace(val.String())
	case slog.KindBool:
		f[key] = val.Bool()
	case slog.KindInt64:
		f[key] = val.Int64()
	case slog.KindUint64:
		if u := val.Uint64(); u <= math.MaxInt64 {
			f[key] = int64(u)
		} else {
			f[key] = u
		}
	case slog.KindFloat64:
		f[key] = val.Float64()
	case slog.KindDuration:
		f[msKey(key)] = RoundMS(val.Duration()).Milliseconds()
	case slog.KindTime:
		f[key] = val.Time().UTC().Format(time.RFC3339Nano)
	default:
		switch x := val.Any().(type) {
		case nil:
		case error:
			f[key] = x.Error()
		case time.Duration:
			f[msKey(key)] = RoundMS(x).Milliseconds()
		case fmt.Stringer:
			f[key] = x.String()
		default:
			f[key] = fmt.Sprint(x)
		}
	}
}

func (f fields) str(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (f fields) setDefault(key, value string) {
	if value != "" && f.str(key) == "" {
		f[key] = value
	}
}

func (f fields) prune() {
	for k, v := range f {
		if v == nil || v == "" {
			delete(f, k)
		}
	}
}

func joinKey(prefix, key string) string {
	switch {
	case key == "":
		return prefix
	case prefix == "":
		return key
	}
	return prefix + "." + key
}

func msKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}
