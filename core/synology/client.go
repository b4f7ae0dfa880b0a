package synology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/synobot/core/logger"
	"github.com/m3rciful/synobot/core/netutil"
)

// StatusError reports a non-200 answer of the incoming webhook.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("synology: incoming webhook returned %d: %s", e.Code, e.Body)
}

// HTTPStatus exposes the status code to netutil retry classification.
func (e *StatusError) HTTPStatus() int { return e.Code }

// Client posts messages to a Synology Chat incoming webhook.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client for incomingURL. A nil httpClient selects the
// retrying default from netutil.
func NewClient(incomingURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = netutil.BuildHTTPClient(netutil.ClientOptions{})
	}
	return &Client{url: incomingURL, http: httpClient}
}

type payload struct {
	Text    string `json:"text"`
	UserIDs []any  `json:"user_ids"`
	Channel string `json:"channel"`
}

// EncodePayload renders the form value Synology expects. Numeric user ids are
// sent as JSON numbers, anything else verbatim.
func EncodePayload(text, userID, channel string) (string, error) {
	p := payload{Text: text, UserIDs: []any{}, Channel: channel}
	if userID != "" {
		if n, err := strconv.ParseInt(userID, 10, 64); err == nil {
			p.UserIDs = append(p.UserIDs, n)
		} else {
			p.UserIDs = append(p.UserIDs, userID)
		}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("synology: encode payload: %w", err)
	}
	return string(raw), nil
}

// Send delivers text to userID (and channel when set). An empty userID
// broadcasts to the webhook's default target.
func (c *Client) Send(ctx context.Context, text, userID, channel string) error {
	start := time.Now()
	raw, err := EncodePayload(text, userID, channel)
	if err != nil {
		return err
	}
	form := url.Values{"payload": {raw}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("synology: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		logSend(ctx, slog.LevelError, userID, 0, start, err)
		return fmt.Errorf("synology: send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		logSend(ctx, slog.LevelError, userID, resp.StatusCode, start, serr)
		return serr
	}
	logSend(ctx, slog.LevelInfo, userID, resp.StatusCode, start, nil)
	return nil
}

func logSend(ctx context.Context, level slog.Level, userID string, code int, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("user_id", userID),
		slog.Duration("duration", logger.Took(start)),
	}
	if code != 0 {
		attrs = append(attrs, slog.Int("http_code", code))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 300)),
			slog.String("err_kind", netutil.ClassifyError(err)),
		)
	}
	logger.SYNO.LogAttrs(ctx, level, "syno.send", attrs...)
}
