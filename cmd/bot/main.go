package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"weekly_report_bot/internal/app"
	"weekly_report_bot/internal/domain/conversation"
	"weekly_report_bot/internal/infra/config"
	idb "weekly_report_bot/internal/infra/database"
	"weekly_report_bot/internal/infra/logger"
	"weekly_report_bot/internal/infra/scheduler"
	"weekly_report_bot/internal/infra/statestore"
	"weekly_report_bot/internal/infra/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Could not load application configuration: %v", err)
	}

	log := logger.New(cfg)
	mainLogger := log.WithField("component", "main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"admin_id":    cfg.AdminTelegramID,
		"timezone":    cfg.Location.String(),
		"state_store": cfg.StateStore,
	}).Info("Weekly report bot starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	if err := idb.ApplyMigrations(ctx, db); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply migrations")
	}
	mainLogger.Info("Database connection established, schema is up to date")

	// Initialize Repositories
	userRepo := idb.NewPostgresUserRepository(db)
	reportRepo := idb.NewPostgresReportRepository(db)
	relationRepo := idb.NewPostgresRelationRepository(db)

	var states conversation.Store
	switch cfg.StateStore {
	case config.StateStoreRedis:
		redisStore, err := statestore.NewRedis(ctx, statestore.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.StateTTL,
		})
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not connect to redis")
		}
		defer redisStore.Close()
		states = redisStore
	default:
		states = statestore.NewMemory()
	}

	bot, err := telegram.NewBot(cfg.TelegramToken, cfg.TelegramPollTimeout, logrus.NewEntry(log))
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}

	now := func() time.Time { return time.Now().In(cfg.Location) }

	notifications := app.NewNotificationService(reportRepo, relationRepo, telegram.NewTelebotAdapter(bot), logrus.NewEntry(log), app.NotificationOptions{
		RetryInterval: cfg.ReminderRetryInterval,
		Concurrency:   cfg.ReminderConcurrency,
		Now:           now,
	})
	dialogue := app.NewReportDialogue(userRepo, reportRepo, relationRepo, states, notifications, logrus.NewEntry(log), now, cfg.ProblemsMinLength)
	dispatcher := app.NewDispatcher(
		app.NewStudentService(userRepo, reportRepo, now),
		app.NewCuratorService(userRepo, reportRepo, relationRepo, notifications, cfg.AdminTelegramID),
		app.NewAdminService(userRepo, relationRepo, notifications, notifications, cfg.AdminTelegramID),
		dialogue,
		userRepo,
		states,
		logrus.NewEntry(log),
		now,
	)

	// Register Handlers
	telegram.RegisterHandlers(ctx, bot, dispatcher)

	weeklyScheduler := scheduler.NewWeeklyScheduler(
		notifications,
		scheduler.Schedule{
			ReminderHour:  cfg.ReminderHour,
			DigestHour:    cfg.DigestHour,
			DigestWeekday: cfg.DigestWeekday,
		},
		cfg.SchedulerTickSpec,
		cfg.Location,
		logrus.NewEntry(log),
	)
	if err := weeklyScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	go bot.Start()
	mainLogger.Info("Application setup complete, bot and scheduler are running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLogger.Info("Shutting down application...")
	bot.Stop()
	cancel()
	weeklyScheduler.Stop()
	mainLogger.Info("Application shut down gracefully")
}
