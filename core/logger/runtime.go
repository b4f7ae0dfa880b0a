package logger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

// contextKey is a private type to avoid collisions in context.
type contextKey string

const (
	ctxRID     contextKey = "rid"
	ctxUserID  contextKey = "user_id"
	ctxChannel contextKey = "channel"
	ctxLogger  contextKey = "logger"
	ctxHandler contextKey = "handler"
)

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxLogger).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return L
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	return withString(ctx, ctxRID, rid)
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxRID)
}

// WithUser attaches the chat platform user id and channel to context.
func WithUser(ctx context.Context, userID, channel string) context.Context {
	ctx = withString(ctx, ctxUserID, userID)
	return withString(ctx, ctxChannel, channel)
}

// UserIDFrom extracts the chat platform user id from context.
func UserIDFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxUserID)
}

// ChannelFrom extracts the channel name from context.
func ChannelFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxChannel)
}

// WithHandler stores handler identifier in context for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	return withString(ctx, ctxHandler, handler)
}

// HandlerFrom returns handler identifier from context if present.
func HandlerFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxHandler)
}

// Detach returns a background context carrying the correlation values of ctx
// so work queued past the request lifetime keeps its log fields.
func Detach(ctx context.Context) context.Context {
	out := context.Background()
	if ctx == nil {
		return out
	}
	out = WithRID(out, RIDFrom(ctx))
	out = WithUser(out, UserIDFrom(ctx), ChannelFrom(ctx))
	out = WithHandler(out, HandlerFrom(ctx))
	if l, ok := ctx.Value(ctxLogger).(*slog.Logger); ok {
		out = WithLogger(out, l)
	}
	return out
}

// Sanitize trims non-printable runes from s to keep logs clean.
// It removes control characters (Unicode categories Cc, Cf) except for tab and newline.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit applies Sanitize and limits the output length in runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}

// BuildRID joins numeric identifiers (e.g. update, chat, user) into a colon-separated rid.
func BuildRID(ids ...int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ":")
}

// CompactRID shortens a rid for readability: colon-separated numbers become
// base36 segments and UUIDs keep their first block. Anything else is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	if rid == "" {
		return ""
	}
	if len(rid) == 36 && strings.Count(rid, "-") == 4 {
		return rid[:8]
	}
	parts := strings.Split(rid, ":")
	if len(parts) < 2 {
		return rid
	}
	compact := make([]string, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		compact = append(compact, strconv.FormatInt(n, 36))
	}
	return strings.Join(compact, ".")
}
