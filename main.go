package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"taskfolio/config"
	"taskfolio/middleware"
	"taskfolio/realtime"
	"taskfolio/routes"
	"taskfolio/services"
	"taskfolio/utils"
	"taskfolio/worker"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	utils.InitLogger(config.AppConfig.LogLevel, config.AppConfig.Environment)
	logger := utils.Logger("main")

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.WithError(err).Warn("Sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	var rdb *redis.Client
	var limiterStorage fiber.Storage
	if config.AppConfig.Redis.Enabled {
		rdb = middleware.NewRedisClient(config.AppConfig.Redis)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		limiterStorage = middleware.NewRedisStorage(rdb)
	}

	hub := realtime.NewHub(services.NewAccess(config.DB), utils.Logger("hub"))

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: utils.FiberErrorHandler,
		AppName:      "taskfolio",
	})
	app.Use(recover.New())
	app.Use(middleware.CORS(middleware.DefaultCORSConfig(config.AppConfig.CORSOrigins...)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.AppConfig.RemindersEnabled {
		tasks := services.NewTaskService(config.DB, hub, utils.Logger("tasks"))
		mailer := utils.NewSMTPMailer(config.AppConfig.SMTP)
		reminderWorker := worker.NewReminderWorker(tasks, mailer, rdb, config.AppConfig.ReminderInterval, utils.Logger("reminders"))
		go reminderWorker.Start(ctx)
	}

	// Setup routes
	routes.SetupRoutes(app, config.DB, hub, routes.Options{
		RateLimitAuth:  config.AppConfig.RateLimitAuth,
		LimiterStorage: limiterStorage,
		RequestLog:     config.AppConfig.Environment != "production",
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down server...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	// Start server
	logger.Infof("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
