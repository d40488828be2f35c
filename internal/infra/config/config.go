package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию агента киоска.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	API struct {
		BaseURL      string        `envconfig:"API_BASE_URL"`
		AssetBaseURL string        `envconfig:"ASSET_BASE_URL"`
		Timeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Poll struct {
		Interval time.Duration `envconfig:"POLL_INTERVAL" default:"10s"`
	} `envconfig:""`

	Notice struct {
		TTL time.Duration `envconfig:"NOTICE_TTL" default:"2s"`
	} `envconfig:""`

	Directory struct {
		CacheTTL time.Duration `envconfig:"DIRECTORY_CACHE_TTL" default:"15m"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	PGDSN string `envconfig:"PG_DSN"`

	AMQPURL string `envconfig:"AMQP_URL"`

	Queues struct {
		Feedback string `envconfig:"FEEDBACK_QUEUE" default:"feedback_events"`
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
