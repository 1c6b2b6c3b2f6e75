package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"letter-assist/internal/adapters/classifier"
	"letter-assist/internal/adapters/dispatch"
	"letter-assist/internal/adapters/mailbox"
	"letter-assist/internal/adapters/push"
	"letter-assist/internal/adapters/repo"
	"letter-assist/internal/auth"
	"letter-assist/internal/domain"
	"letter-assist/internal/httpapi"
	"letter-assist/internal/infra/config"
	"letter-assist/internal/infra/db"
	"letter-assist/internal/infra/dedup"
	applog "letter-assist/internal/infra/log"
	"letter-assist/internal/infra/metrics"
	"letter-assist/internal/infra/queue"
	"letter-assist/internal/infra/yandexgpt"
	"letter-assist/internal/usecase/analytics"
	"letter-assist/internal/usecase/approvals"
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

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("api: не задан секрет JWT (AUTH_JWT_SECRET)")
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Fatal().Err(err).Msg("api: миграции не применились")
	}

	letterRepo := repo.NewPostgres(pool)
	userRepo := repo.NewUsers(pool)
	notifRepo := repo.NewNotifications(pool)

	authManager := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, userRepo)

	pusher, err := push.NewTelegram(cfg.Telegram.Token, logger.With().Str("component", "push").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось создать телеграм-бота")
	}
	notifier := approvals.NewNotifier(userRepo, notifRepo, pusher, logger.With().Str("component", "notifier").Logger())

	gptClient := yandexgpt.NewClient(cfg.YandexGPT.APIKey, cfg.YandexGPT.FolderID, cfg.YandexGPT.BaseURL, cfg.YandexGPT.Timeout)
	clf := classifier.NewYandexGPT(gptClient, cfg.YandexGPT.Model)

	dispatcher := dispatch.NewSMTP(cfg.Mail.SMTPServer, cfg.Mail.SMTPPort, cfg.Mail.SMTPUseSSL,
		cfg.Mail.Login, cfg.Mail.Password, logger.With().Str("component", "smtp").Logger())

	letterSvc := letters.NewService(letterRepo, clf, dispatcher, notifier,
		logger.With().Str("component", "letters").Logger(), cfg.YandexGPT.Timeout)

	analyticsSvc := analytics.NewService(repo.NewAnalytics(pool))

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	analysisQueue, err := newAnalysisQueue(cfg, rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось инициализировать очередь анализа")
	}
	if analysisQueue == nil {
		logger.Warn().Msg("api: очередь анализа не настроена, анализ выполняется синхронно")
	}

	// Ручная проверка почты доступна только при настроенном ящике.
	var mailCheck httpapi.MailChecker
	if cfg.Mail.Login != "" && cfg.Mail.Password != "" {
		imapAddr := fmt.Sprintf("%s:%d", cfg.Mail.IMAPServer, cfg.Mail.IMAPPort)
		box := mailbox.NewIMAP(imapAddr, cfg.Mail.Login, cfg.Mail.Password, logger.With().Str("component", "imap").Logger())
		var seen ingest.SeenFilter
		if rdb != nil {
			seen = dedup.NewFilter(rdb)
		}
		mailCheck = ingest.NewService(box, letterRepo, letterSvc, seen, analysisQueue,
			logger.With().Str("component", "ingest").Logger())
	}

	handler := httpapi.NewHandler(authManager, letterSvc, analyticsSvc, userRepo, notifRepo, analysisQueue, mailCheck,
		logger.With().Str("component", "api").Logger())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api: HTTP сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: HTTP сервер остановился с ошибкой")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("api: сервер остановлен")
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
