package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"letter-assist/internal/adapters/classifier"
	"letter-assist/internal/adapters/dispatch"
	"letter-assist/internal/adapters/push"
	"letter-assist/internal/adapters/repo"
	"letter-assist/internal/domain"
	"letter-assist/internal/infra/config"
	"letter-assist/internal/infra/db"
	applog "letter-assist/internal/infra/log"
	"letter-assist/internal/infra/metrics"
	"letter-assist/internal/infra/queue"
	"letter-assist/internal/infra/yandexgpt"
	"letter-assist/internal/usecase/approvals"
	"letter-assist/internal/usecase/letters"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("analyzer: нет подключения к БД")
	}
	defer pool.Close()

	letterRepo := repo.NewPostgres(pool)
	userRepo := repo.NewUsers(pool)
	notifRepo := repo.NewNotifications(pool)

	pusher, err := push.NewTelegram(cfg.Telegram.Token, logger.With().Str("component", "push").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("analyzer: не удалось создать телеграм-бота")
	}
	notifier := approvals.NewNotifier(userRepo, notifRepo, pusher, logger.With().Str("component", "notifier").Logger())

	gptClient := yandexgpt.NewClient(cfg.YandexGPT.APIKey, cfg.YandexGPT.FolderID, cfg.YandexGPT.BaseURL, cfg.YandexGPT.Timeout)
	clf := classifier.NewYandexGPT(gptClient, cfg.YandexGPT.Model)

	dispatcher := dispatch.NewSMTP(cfg.Mail.SMTPServer, cfg.Mail.SMTPPort, cfg.Mail.SMTPUseSSL,
		cfg.Mail.Login, cfg.Mail.Password, logger.With().Str("component", "smtp").Logger())

	letterSvc := letters.NewService(letterRepo, clf, dispatcher, notifier,
		logger.With().Str("component", "letters").Logger(), cfg.YandexGPT.Timeout)

	analysisQueue, err := buildQueue(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("analyzer: не удалось инициализировать очередь анализа")
	}

	logger.Info().Str("backend", cfg.Queues.Backend).Msg("analyzer: воркер запущен")
	for {
		job, err := analysisQueue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("analyzer: воркер остановлен")
				return
			}
			logger.Error().Err(err).Msg("analyzer: чтение очереди не удалось")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		start := time.Now()
		_, err = letterSvc.Analyze(ctx, job.LetterID)
		if err != nil {
			// Письмо возвращено во входящие, анализ можно повторить вручную.
			logger.Error().Err(err).Int64("letter", job.LetterID).Str("job", job.ID).
				Msg("analyzer: анализ письма не выполнен")
			continue
		}
		logger.Info().Int64("letter", job.LetterID).Dur("took", time.Since(start)).
			Msg("analyzer: письмо проанализировано")
	}
}

func buildQueue(cfg config.AppConfig) (domain.AnalysisQueue, error) {
	switch cfg.Queues.Backend {
	case "rabbit":
		if cfg.Queues.RabbitURL == "" {
			return nil, errors.New("не указан адрес RabbitMQ (RABBITMQ_URL)")
		}
		return queue.NewRabbitAnalysisQueue(cfg.Queues.RabbitURL, cfg.Queues.RabbitMgmtURL, cfg.Queues.Analysis)
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("не указан адрес Redis (REDIS_ADDR)")
		}
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return queue.NewRedisAnalysisQueue(rdb, cfg.Queues.Analysis), nil
	default:
		return nil, fmt.Errorf("неизвестный backend очереди: %q", cfg.Queues.Backend)
	}
}
