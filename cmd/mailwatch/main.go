package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"letter-assist/internal/adapters/mailbox"
	"letter-assist/internal/adapters/repo"
	"letter-assist/internal/domain"
	"letter-assist/internal/infra/config"
	"letter-assist/internal/infra/db"
	"letter-assist/internal/infra/dedup"
	applog "letter-assist/internal/infra/log"
	"letter-assist/internal/infra/metrics"
	"letter-assist/internal/infra/queue"
	"letter-assist/internal/usecase/ingest"
	"letter-assist/internal/usecase/letters"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	if cfg.Mail.Login == "" || cfg.Mail.Password == "" {
		logger.Fatal().Msg("mailwatch: не заданы учётные данные почты (MAIL_LOGIN, MAIL_PASSWORD)")
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("mailwatch: нет подключения к БД")
	}
	defer pool.Close()

	letterRepo := repo.NewPostgres(pool)
	// Письма из ящика только регистрируются, анализ выполняет отдельный воркер.
	letterSvc := letters.NewService(letterRepo, nil, nil, nil,
		logger.With().Str("component", "letters").Logger(), 0)

	var rdb *redis.Client
	var seen ingest.SeenFilter
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		seen = dedup.NewFilter(rdb)
	}

	analysisQueue, err := newAnalysisQueue(cfg, rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("mailwatch: не удалось инициализировать очередь анализа")
	}

	imapAddr := fmt.Sprintf("%s:%d", cfg.Mail.IMAPServer, cfg.Mail.IMAPPort)
	box := mailbox.NewIMAP(imapAddr, cfg.Mail.Login, cfg.Mail.Password,
		logger.With().Str("component", "imap").Logger())

	svc := ingest.NewService(box, letterRepo, letterSvc, seen, analysisQueue,
		logger.With().Str("component", "ingest").Logger())

	svc.Run(ctx, cfg.Mail.CheckInterval, cfg.Sweep.ErrorBackoff)
	logger.Info().Msg("mailwatch: мониторинг почты остановлен")
}

func newAnalysisQueue(cfg config.AppConfig, rdb *redis.Client) (domain.AnalysisQueue, error) {
	switch cfg.Queues.Backend {
	case "rabbit":
		if cfg.Queues.RabbitURL == "" {
			return nil, errors.New("не указан адрес RabbitMQ (RABBITMQ_URL)")
		}
		return queue.NewRabbitAnalysisQueue(cfg.Queues.RabbitURL, cfg.Queues.RabbitMgmtURL, cfg.Queues.Analysis)
	case "redis":
		if rdb == nil {
			return nil, nil
		}
		return queue.NewRedisAnalysisQueue(rdb, cfg.Queues.Analysis), nil
	default:
		return nil, fmt.Errorf("неизвестный backend очереди: %q", cfg.Queues.Backend)
	}
}
