package telegram

import (
	"context"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/synobot/core/logger"
)

const contextKey = "logger_ctx"

// buildContext derives the request context of an update, caching it on c:
// rid from update/chat/user ids plus user and chat correlation values.
func buildContext(c tele.Context) context.Context {
	if v, ok := c.Get(contextKey).(context.Context); ok && v != nil {
		return v
	}

	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}

	ctx := logger.WithRID(context.Background(), logger.BuildRID(int64(c.Update().ID), chatID, userID))
	ctx = logger.WithUser(ctx, formatID(userID), formatID(chatID))
	ctx = logger.WithLogger(ctx, logger.TG)
	c.Set(contextKey, ctx)
	return ctx
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// displayName picks the name stored with statistics.
func displayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	return name
}
