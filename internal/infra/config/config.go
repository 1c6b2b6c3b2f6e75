package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Auth struct {
		JWTSecret string        `envconfig:"AUTH_JWT_SECRET"`
		TokenTTL  time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"30m"`
	} `envconfig:""`

	YandexGPT struct {
		APIKey   string        `envconfig:"YANDEX_API_KEY"`
		FolderID string        `envconfig:"YANDEX_FOLDER_ID"`
		Model    string        `envconfig:"YANDEX_MODEL" default:"yandexgpt"`
		BaseURL  string        `envconfig:"YANDEX_GPT_BASE_URL"`
		Timeout  time.Duration `envconfig:"YANDEX_GPT_TIMEOUT" default:"120s"`
	} `envconfig:""`

	Mail struct {
		Login         string        `envconfig:"MAIL_LOGIN"`
		Password      string        `envconfig:"MAIL_PASSWORD"`
		IMAPServer    string        `envconfig:"MAIL_IMAP_SERVER" default:"imap.yandex.ru"`
		IMAPPort      int           `envconfig:"MAIL_IMAP_PORT" default:"993"`
		SMTPServer    string        `envconfig:"MAIL_SMTP_SERVER" default:"smtp.yandex.ru"`
		SMTPPort      int           `envconfig:"MAIL_SMTP_PORT" default:"465"`
		SMTPUseSSL    bool          `envconfig:"MAIL_SMTP_USE_SSL" default:"true"`
		CheckInterval time.Duration `envconfig:"MAIL_CHECK_INTERVAL" default:"60s"`
	} `envconfig:""`

	Telegram struct {
		Token string `envconfig:"TG_BOT_TOKEN"`
	} `envconfig:""`

	Sweep struct {
		PriorityInterval time.Duration `envconfig:"PRIORITY_SWEEP_INTERVAL" default:"5m"`
		SLAInterval      time.Duration `envconfig:"SLA_SWEEP_INTERVAL" default:"5m"`
		ErrorBackoff     time.Duration `envconfig:"SWEEP_ERROR_BACKOFF" default:"60s"`
	} `envconfig:""`

	Queues struct {
		// Backend: redis или rabbit.
		Backend       string `envconfig:"ANALYSIS_QUEUE_BACKEND" default:"redis"`
		Analysis      string `envconfig:"ANALYSIS_QUEUE_KEY" default:"analysis_jobs"`
		RabbitURL     string `envconfig:"RABBITMQ_URL"`
		RabbitMgmtURL string `envconfig:"RABBITMQ_MANAGEMENT_URL"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
