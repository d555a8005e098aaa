package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию процесса.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
		ChannelID  int64  `envconfig:"CHANNEL_ID"`
	} `envconfig:""`

	AdminIDs []int64 `envconfig:"ADMIN_IDS"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`
	AMQPURL   string `envconfig:"AMQP_URL"`

	// Queue.Backend выбирает бекенд очереди уведомлений:
	// "redis" (по умолчанию) или "rabbitmq".
	Queue struct {
		Backend string `envconfig:"QUEUE_BACKEND" default:"redis"`
		Notify  string `envconfig:"NOTIFY_QUEUE_KEY" default:"moderation_notify"`
	} `envconfig:""`

	// Sources задаёт закрытый набор служб доставки, из которых выбирает пользователь.
	Sources []string `envconfig:"DELIVERY_SOURCES" default:"wolt,yandex,uzum"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
