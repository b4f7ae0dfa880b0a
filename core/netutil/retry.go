// Package netutil holds HTTP client plumbing shared by the outbound transports.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/url"

	"github.com/m3rciful/synobot/core/logger"
)

// HTTPStatusError is implemented by errors that carry an HTTP status code.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// ShouldRetry reports whether a network error is worth retrying.
// It focuses on transient dial/timeout failures produced by net/http.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() || opErr.Op == "dial" {
			return true
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			return ShouldRetry(urlErr.Err)
		}
	}

	var statusErr HTTPStatusError
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatus()
		return code == 429 || code >= 500
	}

	return false
}

// ClassifyError maps err to a short kind label for logs.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	var statusErr HTTPStatusError
	if errors.As(err, &statusErr) {
		switch code := statusErr.HTTPStatus(); {
		case code >= 500:
			return "http_5xx"
		case code >= 400:
			return "http_4xx"
		}
	}

	return "unknown"
}

// RedactError renders err without bot tokens or webhook tokens.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return logger.Redact(err.Error())
}
