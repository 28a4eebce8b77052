package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"timebot/internal/amqp"
	"timebot/internal/bot"
	"timebot/internal/bot/telegram"
	"timebot/internal/cache"
	"timebot/internal/cli"
	apphttp "timebot/internal/http"
	"timebot/internal/log"
	"timebot/internal/middleware/ratelimit"
	"timebot/internal/services"
	"timebot/internal/session"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	// Without a broker the stop event is simply not published; the worker's
	// periodic sweep still picks the entry up.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		publisher = client
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}
	tracker := services.NewTrackerService(repo, publisher)

	sessions := session.NewStore(cfg.SessionTTL)
	caches := cache.NewManager()
	caches.Register(sessions.Cleaner())
	caches.StartCleanup(time.Minute)

	srv := apphttp.NewServer(":"+cfg.Port, tracker, apphttp.Options{
		Logger:    logger,
		Ready:     repo,
		RateLimit: ratelimit.DefaultConfig(),
	})

	var chatLimiter *ratelimit.Limiter
	var adapter *telegram.Adapter
	if cfg.BotToken != "" {
		api, err := telegram.NewBotAPI(cfg.BotToken)
		if err != nil {
			logger.Error("Failed to initialize Telegram bot", log.FieldError, err)
			os.Exit(1)
		}
		handler := bot.NewHandler(tracker, sessions,
			bot.WithLogger(logger),
			bot.WithLimits(cfg.StatsWindowDays, cfg.HistoryLimit))
		chatLimiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
		adapter = telegram.New(api, handler, chatLimiter, logger)
	} else {
		logger.Info("Telegram disabled - no BOT_TOKEN provided")
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting timebot HTTP API", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if adapter != nil {
		g.Go(func() error { return adapter.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("Timebot stopped with error", log.FieldError, err)
	} else {
		cli.WaitForShutdown(ctx, done)
	}

	caches.Stop()
	if chatLimiter != nil {
		chatLimiter.Stop()
	}
	if err := tracker.Close(); err != nil {
		logger.Error("Failed to close tracker", log.FieldError, err)
	}
	logger.Info("Timebot stopped")
}
