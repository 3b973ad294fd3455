package routes

import (
	controller "taskfolio/controllers"
	"taskfolio/middleware"
	"taskfolio/realtime"
	"taskfolio/services"
	"taskfolio/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"
)

// Options tunes cross-cutting route behaviour.
type Options struct {
	// RateLimitAuth caps login and registration attempts per IP per minute.
	RateLimitAuth int
	// LimiterStorage backs the rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	// RequestLog enables the per-request access log.
	RequestLog bool
}

func requestLogger(opts Options) fiber.Handler {
	if !opts.RequestLog {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	})
}

func SetupAuthRoutes(app *fiber.App, db *gorm.DB, accounts *services.AccountService, opts Options) {
	authController := controller.NewAuthController(accounts, utils.Logger("auth"))

	// Auth routes group with logging middleware
	auth := app.Group("/api/auth", requestLogger(opts))

	// Public auth endpoints (no authentication required)
	limited := middleware.AuthRateLimiter(opts.RateLimitAuth, opts.LimiterStorage)
	auth.Post("/register", limited, authController.Register)
	auth.Post("/login", limited, authController.Login)
	auth.Post("/refresh", authController.RefreshToken)
	auth.Post("/logout", authController.Logout)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected(db))
	protectedAuth.Get("/profile", authController.GetCurrentUser)
	protectedAuth.Put("/profile", authController.UpdateProfile)
	protectedAuth.Put("/password", authController.ChangePassword)
	protectedAuth.Delete("/account", authController.DeleteAccount)

	utils.Logger("routes").Info("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, hub *realtime.Hub, opts Options) {
	folderService := services.NewFolderService(db, hub, utils.Logger("folders"))
	taskService := services.NewTaskService(db, hub, utils.Logger("tasks"))

	folderController := controller.NewFolderController(folderService, utils.Logger("folders"))
	taskController := controller.NewTaskController(taskService, utils.Logger("tasks"))
	statsController := controller.NewStatsController(services.NewStatsService(db))
	wsController := controller.NewWSController(hub, utils.Logger("ws"))

	protected := middleware.Protected(db)
	reqLog := requestLogger(opts)

	// Folder routes; the literal /shared paths must precede /:id
	folders := app.Group("/api/folders", protected, reqLog)
	folders.Post("/", folderController.CreateFolder)
	folders.Get("/", folderController.GetFolders)
	folders.Get("/shared/all", folderController.GetSharedFolders)
	folders.Get("/shared/:id", folderController.GetSharedFolder)
	folders.Get("/:id", folderController.GetFolder)
	folders.Put("/:id", folderController.UpdateFolder)
	folders.Delete("/:id", folderController.DeleteFolder)
	folders.Post("/:id/share", folderController.ShareFolder)
	folders.Delete("/:folderId/share/:userId", folderController.RemoveShare)

	// Task routes
	tasks := app.Group("/api/tasks", protected, reqLog)
	tasks.Get("/", taskController.GetTasks)
	tasks.Post("/", taskController.CreateTask)
	tasks.Get("/:id", taskController.GetTask)
	tasks.Put("/:id", taskController.UpdateTask)
	tasks.Patch("/:id", taskController.UpdateTask)
	tasks.Delete("/:id", taskController.DeleteTask)

	// Stats routes
	stats := app.Group("/api/stats", protected, reqLog)
	stats.Get("/personal", statsController.GetPersonalStats)
	stats.Get("/folders", statsController.GetFolderInsights)

	// WebSocket route for folder channels; browsers pass the token as ?token=
	app.Get("/ws", protected, wsController.RequireUpgrade, wsController.Handle())

	utils.Logger("routes").Info("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, hub *realtime.Hub, opts Options) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	accounts := services.NewAccountService(db, hub, utils.Logger("accounts"))
	SetupAuthRoutes(app, db, accounts, opts)
	SetupAPIRoutes(app, db, hub, opts)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
