package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"letter-assist/internal/adapters/push"
	"letter-assist/internal/adapters/repo"
	"letter-assist/internal/infra/config"
	"letter-assist/internal/infra/db"
	applog "letter-assist/internal/infra/log"
	"letter-assist/internal/infra/metrics"
	"letter-assist/internal/usecase/approvals"
	"letter-assist/internal/usecase/sweep"
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
		logger.Fatal().Err(err).Msg("sweeper: нет подключения к БД")
	}
	defer pool.Close()

	letterRepo := repo.NewPostgres(pool)
	userRepo := repo.NewUsers(pool)
	notifRepo := repo.NewNotifications(pool)

	pusher, err := push.NewTelegram(cfg.Telegram.Token, logger.With().Str("component", "push").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: не удалось создать телеграм-бота")
	}
	notifier := approvals.NewNotifier(userRepo, notifRepo, pusher, logger.With().Str("component", "notifier").Logger())

	priority := sweep.NewPrioritySweep(letterRepo, logger.With().Str("component", "priority_sweep").Logger())
	sla := sweep.NewSLASweep(letterRepo, notifRepo, notifier, logger.With().Str("component", "sla_sweep").Logger())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		priority.Run(ctx, cfg.Sweep.PriorityInterval, cfg.Sweep.ErrorBackoff)
	}()
	go func() {
		defer wg.Done()
		sla.Run(ctx, cfg.Sweep.SLAInterval, cfg.Sweep.ErrorBackoff)
	}()
	wg.Wait()
	logger.Info().Msg("sweeper: фоновые циклы остановлены")
}
