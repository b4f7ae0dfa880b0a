package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/m3rciful/synobot/core/logger"
	"github.com/m3rciful/synobot/core/stats"
	"github.com/m3rciful/synobot/core/synology"
)

const (
	msgNoData     = "Данные не получены"
	msgNoText     = "В сообщении нет текста"
	msgSendFailed = "Не удалось отправить ответ"
	msgSent       = "Ответ отправлен"
	msgQueued     = "Ответ поставлен в очередь"

	defaultTestMessage = "Тестовое сообщение"
	timestampLayout    = "2006-01-02 15:04:05"
)

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	in, err := synology.ParseWebhook(r)
	if err != nil {
		msg := msgNoData
		if errors.Is(err, synology.ErrEmptyText) {
			msg = msgNoText
		}
		logger.HTTP.LogAttrs(r.Context(), slog.LevelWarn, "webhook.reject",
			slog.String("status", "skip"),
			slog.String("user_id", in.UserID),
			slog.String("err", err.Error()),
		)
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := logger.WithUser(r.Context(), in.UserID, in.Channel)
	logger.HTTP.LogAttrs(ctx, slog.LevelInfo, "webhook.message",
		slog.String("status", "ok"),
		slog.String("username", logger.SanitizeLimit(in.Username, 64)),
		slog.String("payload", logger.SanitizeLimit(in.Text, 256)),
	)

	res := s.opts.Engine.Process(ctx, in.Text, in.UserID, in.Username)

	if s.opts.Queue != nil {
		text, userID, channel := res.Text, in.UserID, in.Channel
		err := s.opts.Queue.Enqueue(ctx, "syno.send", func(jobCtx context.Context) error {
			return s.opts.Delivery.Send(jobCtx, text, userID, channel)
		})
		if err != nil {
			logger.HTTP.LogAttrs(ctx, slog.LevelError, "webhook.deliver",
				slog.String("status", "dropped"),
				slog.String("category", res.Category),
				slog.String("err", err.Error()),
			)
			writeError(w, http.StatusServiceUnavailable, msgSendFailed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "success",
			"message":  msgQueued,
			"category": res.Category,
		})
		return
	}

	if err := s.opts.Delivery.Send(ctx, res.Text, in.UserID, in.Channel); err != nil {
		writeError(w, http.StatusInternalServerError, msgSendFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "success",
		"message":  msgSent,
		"category": res.Category,
	})
}

func (s *Server) sendTest(w http.ResponseWriter, r *http.Request) {
	message := strings.TrimSpace(r.FormValue("message"))
	if message == "" {
		message = defaultTestMessage
	}
	if err := s.opts.Delivery.Send(r.Context(), "🎉 **Тестовое сообщение:**\n\n"+message, "", ""); err != nil {
		writeError(w, http.StatusInternalServerError, msgSendFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": msgSent})
}

type healthResponse struct {
	Status  string `json:"status"`
	BotName string `json:"bot_name"`
	Port    int    `json:"port"`
	Uptime  string `json:"uptime"`
	Version string `json:"version,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "active",
		BotName: s.opts.BotName,
		Port:    s.opts.Port,
		Uptime:  s.uptimeText(),
		Version: s.opts.Version,
	})
}

func (s *Server) uptime(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"uptime": s.uptimeText()})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.summary(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_requests": sum.TotalRequests,
		"unique_users":   sum.UniqueUsers,
		"uptime":         s.uptimeText(),
	})
}

type recentRequest struct {
	Username  string `json:"username"`
	Question  string `json:"question"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) recentRequests(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.summary(w, r)
	if !ok {
		return
	}
	out := make([]recentRequest, 0, len(sum.Recent))
	for _, req := range sum.Recent {
		category := req.Category
		if category == "" {
			category = "N/A"
		}
		out = append(out, recentRequest{
			Username:  req.Username,
			Question:  req.Question,
			Category:  category,
			Timestamp: req.Timestamp.Format(timestampLayout),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"recent_requests": out})
}

func (s *Server) categoryStats(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.summary(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category_stats": sum.Categories})
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) (stats.Summary, bool) {
	sum, err := s.opts.Stats.Statistics(r.Context(), s.opts.RecentLimit)
	if err != nil {
		logger.HTTP.LogAttrs(r.Context(), slog.LevelError, "stats.query",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "statistics unavailable")
		return stats.Summary{}, false
	}
	return sum, true
}
