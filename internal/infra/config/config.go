package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	StateStoreMemory = "memory"
	StateStoreRedis  = "redis"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken       string        `validate:"required"`
	TelegramPollTimeout time.Duration `validate:"gt=0"`
	DatabaseURL         string        `validate:"required"`
	AdminTelegramID     int64         `validate:"required"`
	LogLevel            string
	Environment         string
	Location            *time.Location `validate:"required"`

	SchedulerTickSpec     string        `validate:"required"`
	ReminderHour          int           `validate:"gte=0,lte=23"`
	DigestHour            int           `validate:"gte=0,lte=23"`
	DigestWeekday         time.Weekday  `validate:"gte=0,lte=6"`
	ReminderRetryInterval time.Duration `validate:"gt=0"`
	ReminderConcurrency   int           `validate:"gte=1"`

	// ProblemsMinLength applies to the last report question. The other free-text questions always require 5 characters.
	ProblemsMinLength int `validate:"gte=0"`

	StateStore    string        `validate:"oneof=memory redis"`
	RedisAddr     string        `validate:"required_if=StateStore redis"`
	RedisPassword string
	RedisDB       int           `validate:"gte=0"`
	StateTTL      time.Duration `validate:"gte=0"`

	BackupDir string `validate:"required"`
}

var validate = validator.New()

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables; a missing file is fine.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
	if adminIDStr == "" {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
	}
	cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))

	tz := os.Getenv("TIMEZONE")
	if tz == "" {
		cfg.Location = time.Local
	} else if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	cfg.SchedulerTickSpec = getEnv("SCHEDULER_TICK_SPEC", "@hourly")

	if cfg.ReminderHour, err = getInt("REMINDER_HOUR", 10); err != nil {
		return nil, err
	}
	if cfg.DigestHour, err = getInt("DIGEST_HOUR", 14); err != nil {
		return nil, err
	}
	weekday, err := getInt("DIGEST_WEEKDAY", int(time.Wednesday))
	if err != nil {
		return nil, err
	}
	cfg.DigestWeekday = time.Weekday(weekday)

	if cfg.ReminderRetryInterval, err = getDuration("REMINDER_RETRY_INTERVAL", 300*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReminderConcurrency, err = getInt("REMINDER_CONCURRENCY", 20); err != nil {
		return nil, err
	}
	if cfg.ProblemsMinLength, err = getInt("PROBLEMS_MIN_LENGTH", 0); err != nil {
		return nil, err
	}
	if cfg.TelegramPollTimeout, err = getDuration("TELEGRAM_POLL_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.StateStore = strings.ToLower(getEnv("STATE_STORE", StateStoreMemory))
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.StateTTL, err = getDuration("STATE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.BackupDir = getEnv("BACKUP_DIR", "backups")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
