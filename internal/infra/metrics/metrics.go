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
	MailFetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mail_fetch_errors_total",
		Help: "Ошибки при выгрузке входящей почты",
	})
	LettersIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "letters_ingested_total",
		Help: "Количество принятых входящих писем",
	})
	AnalysisSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "letter_analysis_seconds",
		Help:    "Время полного анализа письма",
		Buckets: prometheus.DefBuckets,
	})
	AnalysisFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "letter_analysis_failures_total",
		Help: "Неудачные анализы писем",
	})
	PrioritiesChanged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "priority_sweep_changed_total",
		Help: "Письма с изменённым приоритетом за все проходы",
	})
	SLANotifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_notifications_total",
		Help: "Созданные SLA-уведомления",
	}, []string{"kind"})
	DispatchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_errors_total",
		Help: "Ошибки отправки финальных ответов",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		MailFetchErrors,
		LettersIngested,
		AnalysisSeconds,
		AnalysisFailures,
		PrioritiesChanged,
		SLANotifications,
		DispatchErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
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

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
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

// ObserveLLMGeneration записывает длительность генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
}
