// Package app composes the bot from its parts and runs it for the configured platform.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/m3rciful/synobot/core/buildinfo"
	"github.com/m3rciful/synobot/core/config"
	"github.com/m3rciful/synobot/core/conversation"
	"github.com/m3rciful/synobot/core/dispatch"
	"github.com/m3rciful/synobot/core/httpapi"
	"github.com/m3rciful/synobot/core/kb"
	"github.com/m3rciful/synobot/core/logger"
	"github.com/m3rciful/synobot/core/netutil"
	"github.com/m3rciful/synobot/core/session"
	"github.com/m3rciful/synobot/core/stats"
	"github.com/m3rciful/synobot/core/synology"
	"github.com/m3rciful/synobot/core/telegram"
)

// App owns every long-lived component of a running bot.
type App struct {
	cfg     *config.Config
	started time.Time

	KB       *kb.Store
	Sessions *session.Store
	Engine   *conversation.Engine
	Stats    stats.Store

	statsQueue *dispatch.Dispatcher
	replyQueue *dispatch.Dispatcher
	syno       *synology.Client
	server     *httpapi.Server

	closeOnce sync.Once
}

// Options customize New; zero values use the configuration.
type Options struct {
	// KB replaces the file backed knowledge base.
	KB *kb.Store
	// SynologyClient replaces the HTTP client used for incoming webhook posts.
	SynologyClient *http.Client
	Now            func() time.Time
}

// New wires the components described by cfg. store may be stats.Nop.
func New(cfg *config.Config, store stats.Store, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config provided")
	}
	if store == nil {
		store = stats.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	a := &App{cfg: cfg, started: now(), Stats: store}

	a.KB = opts.KB
	if a.KB == nil {
		a.KB = kb.NewStore(cfg.KnowledgeBase.Path)
	}
	a.Sessions = session.NewStore(session.WithClock(now))

	engineOpts := []conversation.Option{conversation.WithBotName(cfg.App.Name)}
	if len(cfg.Conversation.ResetKeywords) > 0 {
		engineOpts = append(engineOpts, conversation.WithResetKeywords(cfg.Conversation.ResetKeywords...))
	}
	if len(cfg.Conversation.BackKeywords) > 0 {
		engineOpts = append(engineOpts, conversation.WithBackKeywords(cfg.Conversation.BackKeywords...))
	}
	if cfg.Stats.Enabled {
		a.statsQueue = dispatch.New(dispatch.Options{
			Name:         "stats",
			QueueSize:    cfg.Stats.QueueSize,
			Workers:      cfg.Stats.Workers,
			MaxRetries:   cfg.Stats.MaxRetries,
			RetryBackoff: time.Duration(cfg.Stats.RetryBackoffMS) * time.Millisecond,
			Retryable:    stats.Retryable,
		})
		engineOpts = append(engineOpts, conversation.WithTurnSink(conversation.NewJournal(store, a.statsQueue)))
	}
	a.Engine = conversation.New(a.KB, a.Sessions, engineOpts...)

	serverOpts := httpapi.Options{
		BotName:     cfg.App.Name,
		Version:     buildinfo.Version,
		Port:        cfg.Server.Port,
		RecentLimit: cfg.Stats.RecentLimit,
		Engine:      a.Engine,
		Stats:       store,
		Started:     a.started,
		Now:         now,
	}

	switch cfg.App.Platform {
	case config.PlatformTelegram:
		a.replyQueue = dispatch.New(dispatch.Options{
			Name:      "tg.reply",
			Workers:   4,
			Retryable: telegram.Retryable,
		})
	default:
		client := opts.SynologyClient
		if client == nil {
			client = netutil.BuildHTTPClient(netutil.ClientOptions{
				Timeout:            time.Duration(cfg.Synology.TimeoutSeconds) * time.Second,
				InsecureSkipVerify: cfg.Synology.InsecureSkipVerify,
			})
		}
		a.syno = synology.NewClient(cfg.Synology.IncomingURL, client)
		serverOpts.Delivery = a.syno
		if cfg.Synology.AsyncDelivery {
			a.replyQueue = dispatch.New(dispatch.Options{
				Name:       "syno.reply",
				MaxRetries: 2,
				Retryable:  netutil.ShouldRetry,
			})
			serverOpts.Queue = a.replyQueue
		}
	}
	a.server = httpapi.New(serverOpts)
	return a, nil
}

// Handler returns the HTTP router serving the webhook and the status API.
func (a *App) Handler() http.Handler {
	return a.server.Routes()
}

// Run blocks until ctx is done or a transport fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.KB.Watch(ctx, time.Duration(a.cfg.KnowledgeBase.ReloadIntervalSeconds)*time.Second)
	go a.reloadOnHangup(ctx)
	a.Sessions.StartSweeper(ctx,
		time.Duration(a.cfg.Session.SweepIntervalSeconds)*time.Second,
		time.Duration(a.cfg.Session.IdleTTLMinutes)*time.Minute,
	)

	errc := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		errc <- a.serveHTTP(ctx)
	}()
	if a.cfg.App.Platform == config.PlatformTelegram {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errc <- telegram.Run(ctx, telegram.RunOptions{
				Config: a.cfg,
				Engine: a.Engine,
				Queue:  a.replyQueue,
			})
		}()
	}

	logger.Info(ctx, "app", "ready",
		slog.String("status", "ok"),
		slog.String("platform", a.cfg.App.Platform),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(a.started))),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}
	cancel()
	wg.Wait()

	logger.Info(context.Background(), "app", "shutdown",
		slog.String("status", logger.Status(runErr)),
	)
	return runErr
}

// serveHTTP listens on the configured address until ctx is done.
func (a *App) serveHTTP(ctx context.Context) error {
	addr := net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.HTTP.LogAttrs(ctx, slog.LevelInfo, "http.listen",
			slog.String("status", "ok"),
			slog.String("addr", addr),
		)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	case <-ctx.Done():
	}

	timeout := time.Duration(a.cfg.Server.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.HTTP.LogAttrs(shutdownCtx, slog.LevelWarn, "http.shutdown",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}

// reloadOnHangup reloads the knowledge base on SIGHUP.
func (a *App) reloadOnHangup(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			_ = a.KB.Reload()
		}
	}
}

// Close drains the background queues. It is safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.replyQueue != nil {
			a.replyQueue.Close()
		}
		if a.statsQueue != nil {
			a.statsQueue.Close()
		}
	})
}
