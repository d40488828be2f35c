package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	PollSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poll_skipped_total",
		Help: "Триггеры опроса, отброшенные из-за незавершённого запроса",
	})

	PollCycleSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "poll_cycle_seconds",
		Help:    "Длительность одного цикла опроса талонов",
		Buckets: prometheus.DefBuckets,
	})

	SubmitOutcomeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "submit_outcome_total",
		Help: "Исходы отправки отзывов",
	}, []string{"outcome"})

	DirectoryCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "directory_cache_total",
		Help: "Обращения к кэшу справочника подразделений",
	}, []string{"result"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NetworkRequestDuration,
		NetworkRequestTotal,
		PollSkippedTotal,
		PollCycleSeconds,
		SubmitOutcomeTotal,
		DirectoryCacheTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncPollSkipped увеличивает счётчик отброшенных триггеров опроса.
func IncPollSkipped() {
	PollSkippedTotal.Inc()
}

// ObservePollCycle записывает длительность цикла опроса.
func ObservePollCycle(start time.Time) {
	PollCycleSeconds.Observe(time.Since(start).Seconds())
}

// IncSubmitOutcome увеличивает счётчик исходов отправки.
func IncSubmitOutcome(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	SubmitOutcomeTotal.WithLabelValues(outcome).Inc()
}

// IncDirectoryCache увеличивает счётчик обращений к кэшу справочника.
func IncDirectoryCache(result string) {
	DirectoryCacheTotal.WithLabelValues(result).Inc()
}
