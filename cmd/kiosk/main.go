package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"feedback-kiosk/internal/adapters/feedbackapi"
	"feedback-kiosk/internal/adapters/repo"
	"feedback-kiosk/internal/domain"
	"feedback-kiosk/internal/gateway"
	"feedback-kiosk/internal/infra/cache"
	"feedback-kiosk/internal/infra/config"
	"feedback-kiosk/internal/infra/db"
	infralog "feedback-kiosk/internal/infra/log"
	"feedback-kiosk/internal/infra/metrics"
	"feedback-kiosk/internal/infra/queue"
	"feedback-kiosk/internal/usecase/appstate"
	"feedback-kiosk/internal/usecase/directory"
	"feedback-kiosk/internal/usecase/poller"
	"feedback-kiosk/internal/usecase/submit"
)

func main() {
	cfg := config.Load()
	logger := infralog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiClient, err := feedbackapi.New(cfg.API.BaseURL, cfg.API.AssetBaseURL,
		feedbackapi.WithTimeout(cfg.API.Timeout))
	if err != nil {
		logger.Fatal().Err(err).Msg("kiosk: некорректный адрес API")
	}

	var directoryCache domain.Cache
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		directoryCache = cache.NewRedis(redisClient)
	}

	var journal domain.SubmissionJournal
	var journalReader gateway.Journal
	if cfg.PGDSN != "" {
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("kiosk: нет подключения к БД журнала")
		}
		defer pool.Close()
		pg := repo.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("kiosk: не удалось подготовить журнал")
		}
		journal = pg
		journalReader = pg
	}

	var events domain.FeedbackEventQueue
	switch {
	case cfg.AMQPURL != "":
		rabbit, err := queue.NewRabbitFeedbackQueue(cfg.AMQPURL, cfg.Queues.Feedback)
		if err != nil {
			logger.Fatal().Err(err).Msg("kiosk: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		events = rabbit
	case redisClient != nil:
		events = queue.NewRedisFeedbackQueue(redisClient, cfg.Queues.Feedback)
	}

	directoryService := directory.NewService(apiClient, directoryCache, cfg.Directory.CacheTTL,
		infralog.Component(logger, "directory"))
	pollerService := poller.NewService(apiClient, cfg.Poll.Interval,
		infralog.Component(logger, "poller"))
	submitService := submit.NewService(apiClient, pollerService, journal, events,
		infralog.Component(logger, "submit"))
	controller := appstate.NewController(directoryService, pollerService, submitService,
		cfg.Notice.TTL, infralog.Component(logger, "appstate"))
	defer controller.Close()

	// справочник загружается один раз при старте, дальше — по действию
	// пользователя через гейтвей
	controller.LoadDirectory()

	gatewayServer := gateway.NewServer(controller, journalReader, infralog.Component(logger, "gateway"))
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      gatewayServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	metrics.StartServer(ctx, infralog.Component(logger, "metrics"), cfg.MetricsAddr)

	go func() {
		logger.Info().Int("port", cfg.Port).Msg("kiosk: старт")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("kiosk: сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("kiosk: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
