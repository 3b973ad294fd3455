// Command send-reminders runs a single reminder pass and exits, for use
// from cron when the in-process worker is disabled.
package main

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"taskfolio/config"
	"taskfolio/middleware"
	"taskfolio/services"
	"taskfolio/utils"
	"taskfolio/worker"
)

func main() {
	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	utils.InitLogger(config.AppConfig.LogLevel, config.AppConfig.Environment)
	logger := utils.Logger("send-reminders")

	if config.AppConfig.SMTP.Host == "" {
		logger.Fatal("SMTP_HOST is required")
	}
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	var rdb *redis.Client
	if config.AppConfig.Redis.Enabled {
		rdb = middleware.NewRedisClient(config.AppConfig.Redis)
		defer rdb.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	tasks := services.NewTaskService(config.DB, services.NopBroadcaster{}, utils.Logger("tasks"))
	rw := worker.NewReminderWorker(tasks, utils.NewSMTPMailer(config.AppConfig.SMTP), rdb, config.AppConfig.ReminderInterval, logger)
	sent, err := rw.RunOnce(ctx)
	if err != nil {
		logger.Fatalf("Reminder run failed: %v", err)
	}
	logger.WithField("sent", sent).Info("Reminders sent")
}
