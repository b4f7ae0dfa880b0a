package logger

import (
	"regexp"
	"strings"
)

const redacted = "[redacted]"

var (
	// Telegram Bot API paths embed the token as bot<id>:<secret>.
	botTokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
	// Synology incoming webhook URLs carry the token as a query parameter.
	queryTokenRe = regexp.MustCompile(`(?i)\b(token=)(%22)?[^&\s"%]+(%22)?`)

	secretKeys = map[string]bool{
		"token":     true,
		"bot_token": true,
		"password":  true,
	}
)

// Redact masks bot tokens and token query parameters in s.
func Redact(s string) string {
	if !strings.ContainsAny(s, ":=") {
		return s
	}
	s = botTokenRe.ReplaceAllString(s, "bot"+redacted)
	return queryTokenRe.ReplaceAllString(s, "${1}"+redacted)
}

func (f fields) redact() {
	for k, v := range f {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if secretKeys[k] {
			f[k] = redacted
			continue
		}
		f[k] = Redact(s)
	}
}
