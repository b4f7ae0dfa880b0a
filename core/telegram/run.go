// Package telegram runs the conversation engine over the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/synobot/core/config"
	"github.com/m3rciful/synobot/core/logger"
	"github.com/m3rciful/synobot/core/netutil"
)

// RunOptions controls Run.
type RunOptions struct {
	Config *config.Config
	Engine Processor
	// Queue carries outbound replies; nil sends inline.
	Queue Enqueuer

	// Client overrides the HTTP client used for Bot API calls.
	Client *http.Client
	// Offline skips the getMe call at startup (tests).
	Offline bool

	DisableWebhookCleanup bool
}

// Run serves updates until ctx is done.
func Run(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	if opts.Engine == nil {
		return fmt.Errorf("telegram: nil engine provided")
	}
	cfg := opts.Config

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})

	client := opts.Client
	if client == nil {
		client = netutil.BuildHTTPClient(netutil.ClientOptions{
			Timeout:               longPollTimeout(cfg.Telegram.LongPollTimeoutSeconds) + 30*time.Second,
			ResponseHeaderTimeout: longPollTimeout(cfg.Telegram.LongPollTimeoutSeconds) + 10*time.Second,
		})
	}

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  client,
		Offline: opts.Offline,
		OnError: func(err error, c tele.Context) {
			lctx := context.Background()
			if c != nil {
				lctx = buildContext(c)
			}
			logger.TG.LogAttrs(lctx, slog.LevelError, "tg.handler",
				slog.String("status", "fail"),
				slog.String("err", netutil.RedactError(err)),
				slog.String("err_kind", netutil.ClassifyError(err)),
			)
		},
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %s", netutil.RedactError(err))
	}
	buildTook := time.Since(buildStart)

	switch p := poller.(type) {
	case *tele.Webhook:
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "tg.mode",
			slog.String("status", "ok"),
			slog.String("mode", config.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
	default:
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "tg.mode",
			slog.String("status", "ok"),
			slog.String("mode", config.RunModeLongpoll),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
		if !opts.DisableWebhookCleanup && !opts.Offline {
			if err := deleteWebhook(ctx, client, cfg.Telegram.Token); err != nil {
				logger.TG.LogAttrs(ctx, slog.LevelWarn, "tg.delete_webhook",
					slog.String("status", "fail"),
					slog.String("err", netutil.RedactError(err)),
				)
			}
		}
	}

	bot.Use(recoverMiddleware, loggerMiddleware)
	bot.Handle(tele.OnText, textHandler(opts.Engine, opts.Queue))

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	case <-runDone:
		return nil
	}
}

// deleteWebhook clears a previously registered webhook so long polling receives updates.
func deleteWebhook(ctx context.Context, client *http.Client, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := "https://api.telegram.org/bot" + token + "/deleteWebhook"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader("drop_pending_updates=false"))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
