// Package httpapi exposes the Synology webhook and the JSON status API.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/synobot/core/conversation"
	"github.com/m3rciful/synobot/core/dispatch"
	"github.com/m3rciful/synobot/core/stats"
)

// Processor answers one chat message.
type Processor interface {
	Process(ctx context.Context, text, userID, username string) conversation.Result
}

// Deliverer sends a reply back to the chat platform.
type Deliverer interface {
	Send(ctx context.Context, text, userID, channel string) error
}

// Enqueuer schedules background jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, action string, run dispatch.Job) error
}

// Options wires a Server.
type Options struct {
	BotName     string
	Version     string
	Port        int
	RecentLimit int

	Engine Processor
	// Delivery enables POST /webhook and POST /api/send-test when set.
	Delivery Deliverer
	// Queue makes webhook delivery asynchronous when set.
	Queue Enqueuer
	Stats stats.Reader

	Started time.Time
	Now     func() time.Time
}

// Server holds the HTTP handlers.
type Server struct {
	opts Options
}

// New returns a Server with defaults applied.
func New(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Started.IsZero() {
		opts.Started = opts.Now()
	}
	if opts.Stats == nil {
		opts.Stats = stats.Nop{}
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 10
	}
	return &Server{opts: opts}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestContext)
	r.Use(accessLog)
	r.Use(recoverer)

	r.Get("/health", s.health)
	if s.opts.Delivery != nil && s.opts.Engine != nil {
		r.Post("/webhook", s.webhook)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Get("/health", s.health)
		r.Get("/uptime", s.uptime)
		r.Get("/stats", s.stats)
		r.Get("/recent-requests", s.recentRequests)
		r.Get("/category-stats", s.categoryStats)
		if s.opts.Delivery != nil {
			r.Post("/send-test", s.sendTest)
		}
	})
	return r
}

func (s *Server) uptimeText() string {
	return FormatUptime(s.opts.Now().Sub(s.opts.Started))
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
