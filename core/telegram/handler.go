package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/synobot/core/conversation"
	"github.com/m3rciful/synobot/core/dispatch"
	"github.com/m3rciful/synobot/core/logger"
	"github.com/m3rciful/synobot/core/netutil"
)

// Processor answers one chat message.
type Processor interface {
	Process(ctx context.Context, text, userID, username string) conversation.Result
}

// Enqueuer schedules background jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, action string, run dispatch.Job) error
}

var markdownBold = strings.NewReplacer("**", "*")

// ToMarkdownV1 rewrites the double-asterisk bold of the menu texts into
// Telegram's legacy Markdown.
func ToMarkdownV1(s string) string {
	return markdownBold.Replace(s)
}

// textHandler feeds text messages to the engine and replies through the queue.
// A saturated queue falls back to a direct send.
func textHandler(engine Processor, queue Enqueuer) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := buildContext(c)
		user := c.Sender()
		userID := ""
		if user != nil {
			userID = formatID(user.ID)
		}
		res := engine.Process(ctx, c.Text(), userID, displayName(user))

		text := ToMarkdownV1(res.Text)
		send := func(context.Context) error {
			return c.Send(text, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
		}
		if queue == nil {
			return send(ctx)
		}
		if err := queue.Enqueue(ctx, "tg.send", send); err != nil {
			if errors.Is(err, dispatch.ErrQueueFull) || errors.Is(err, dispatch.ErrQueueClosed) {
				logger.TG.LogAttrs(ctx, slog.LevelWarn, "queue.fallback",
					slog.String("status", "fallback"),
					slog.String("err", err.Error()),
				)
				return send(ctx)
			}
			return err
		}
		return nil
	}
}

// Retryable extends netutil.ShouldRetry with Telegram flood waits and 5xx answers.
func Retryable(err error) bool {
	if netutil.ShouldRetry(err) {
		return true
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return true
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return false
}
