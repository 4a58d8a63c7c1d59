package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"weekly_report_bot/internal/infra/backup"
	"weekly_report_bot/internal/infra/config"
	idb "weekly_report_bot/internal/infra/database"
	"weekly_report_bot/internal/infra/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Could not load application configuration: %v", err)
	}
	log := logger.New(cfg).WithField("component", "backup")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()

	writer := backup.NewWriter(
		idb.NewPostgresUserRepository(db),
		idb.NewPostgresReportRepository(db),
		idb.NewPostgresRelationRepository(db),
		cfg.BackupDir,
	)
	path, err := writer.Write(ctx, time.Now().In(cfg.Location))
	if err != nil {
		log.WithError(err).Fatal("Backup failed")
	}
	log.WithField("path", path).Info("Backup written")
	fmt.Println(path)
}
