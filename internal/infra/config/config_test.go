package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("DATABASE_URL", "postgres://localhost/reports?sslmode=disable")
	t.Setenv("ADMIN_TELEGRAM_ID", "42")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(42), cfg.AdminTelegramID)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "UTC", cfg.Location.String())
	assert.Equal(t, "@hourly", cfg.SchedulerTickSpec)
	assert.Equal(t, 10, cfg.ReminderHour)
	assert.Equal(t, 14, cfg.DigestHour)
	assert.Equal(t, time.Wednesday, cfg.DigestWeekday)
	assert.Equal(t, 300*time.Second, cfg.ReminderRetryInterval)
	assert.Equal(t, 20, cfg.ReminderConcurrency)
	assert.Equal(t, 0, cfg.ProblemsMinLength)
	assert.Equal(t, StateStoreMemory, cfg.StateStore)
	assert.Equal(t, 24*time.Hour, cfg.StateTTL)
	assert.Equal(t, "backups", cfg.BackupDir)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("REMINDER_HOUR", "9")
	t.Setenv("DIGEST_WEEKDAY", "4")
	t.Setenv("REMINDER_RETRY_INTERVAL", "30s")
	t.Setenv("PROBLEMS_MIN_LENGTH", "5")
	t.Setenv("STATE_STORE", "Redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.ReminderHour)
	assert.Equal(t, time.Thursday, cfg.DigestWeekday)
	assert.Equal(t, 30*time.Second, cfg.ReminderRetryInterval)
	assert.Equal(t, 5, cfg.ProblemsMinLength)
	assert.Equal(t, StateStoreRedis, cfg.StateStore)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad admin id":        {"ADMIN_TELEGRAM_ID", "admin"},
		"hour out of range":   {"REMINDER_HOUR", "24"},
		"bad duration":        {"REMINDER_RETRY_INTERVAL", "soon"},
		"unknown state store": {"STATE_STORE", "etcd"},
		"redis without addr":  {"STATE_STORE", "redis"},
		"bad timezone":        {"TIMEZONE", "Mars/Olympus"},
		"zero concurrency":    {"REMINDER_CONCURRENCY", "0"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("TIMEZONE", "UTC")
			t.Setenv(kv[0], kv[1])

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadRequiresToken(t *testing.T) {
	setRequired(t)
	t.Setenv("TELEGRAM_TOKEN", "")

	_, err := Load()
	assert.ErrorContains(t, err, "TELEGRAM_TOKEN")
}
