package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment    string `mapstructure:"ENV"`
	HTTPAddr       string `mapstructure:"HTTP_ADDR"`
	DBDSN          string `mapstructure:"DB_DSN"`
	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"` // пусто: встроенные миграции
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	AppURL         string `mapstructure:"APP_URL"`

	// Необязательные интеграции: без ключа используется заглушка
	ResendAPIKey    string `mapstructure:"RESEND_API_KEY"`
	EmailFrom       string `mapstructure:"EMAIL_FROM"`
	AdminEmail      string `mapstructure:"ADMIN_EMAIL"`
	TelegramToken   string `mapstructure:"TELEGRAM_TOKEN"`
	MixpanelToken   string `mapstructure:"MIXPANEL_TOKEN"`
	StripeSecretKey string `mapstructure:"STRIPE_SECRET_KEY"`

	WorkerConcurrency  int           `mapstructure:"WORKER_CONCURRENCY"`
	WorkerPollInterval time.Duration `mapstructure:"WORKER_POLL_INTERVAL"`
}

var defaults = map[string]any{
	"ENV":                  "development",
	"HTTP_ADDR":            ":8080",
	"DB_DSN":               "",
	"MIGRATIONS_PATH":      "",
	"REDIS_ADDR":           "localhost:6379",
	"JWT_SECRET":           "",
	"APP_URL":              "http://localhost:3000",
	"RESEND_API_KEY":       "",
	"EMAIL_FROM":           "Concierge <dates@example.com>",
	"ADMIN_EMAIL":          "",
	"TELEGRAM_TOKEN":       "",
	"MIXPANEL_TOKEN":       "",
	"STRIPE_SECRET_KEY":    "",
	"WORKER_CONCURRENCY":   4,
	"WORKER_POLL_INTERVAL": "5s",
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s required but not set", strings.Join(missing, ", "))
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.WorkerConcurrency)
	}
	if c.WorkerPollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive, got %s", c.WorkerPollInterval)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
