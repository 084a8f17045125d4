package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"box-mining-service/config"
	"box-mining-service/database"
	"box-mining-service/handlers"
	"box-mining-service/logger"
	"box-mining-service/middleware"
	"box-mining-service/services"
	"box-mining-service/utils"
	"box-mining-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func main() {
	cfg, dotenvLoaded, err := config.Load()
	if err != nil {
		// logger is not configured yet
		logger.Initialize(logger.Configuration{Level: "info", Console: true})
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Initialize(logger.Configuration{LogFile: cfg.LogFile, Level: cfg.LogLevel, Console: true})
	defer logger.Sync()

	if !dotenvLoaded {
		logger.Warn("⚠️  No .env file found, reading environment variables directly")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Acquire(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	assets, err := utils.NewAssetStore(ctx, cfg.R2)
	if err != nil {
		logger.Fatal("failed to initialize R2 client", zap.Error(err))
	}

	templates := services.NewTemplateStore(db, services.SystemClock{}, cfg.StoreTimeout, cfg.CatalogRefreshInterval)
	catalogScheduler, err := templates.StartCatalogScheduler(cfg.CatalogRefreshInterval)
	if err != nil {
		logger.Fatal("failed to start catalog scheduler", zap.Error(err))
	}

	boxService := services.NewBoxService(db, templates, services.SystemClock{}, services.DefaultRandom, cfg.StoreTimeout)
	boxService.Assets = assets
	leaderboard := services.NewLeaderboardService(db, cfg.StoreTimeout)
	auth := middleware.NewAuthenticator(cfg.AuthSecret)

	if cfg.ProfileSyncURL != "" {
		workers.NewProfileSyncWorker(db, cfg.ProfileSyncURL, cfg.ProfileSyncToken, cfg.ProfileSyncInterval).Start(ctx)
	} else {
		logger.Info("profile sync disabled (PROFILE_SYNC_URL not set)")
	}

	app := fiber.New(fiber.Config{
		AppName:      "box-mining-service",
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: jsonErrorHandler,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLogger())

	allowedOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	handlers.SetupHealthRoutes(app)
	handlers.SetupBoxRoutes(app, handlers.NewBoxHandler(ctx, boxService), auth)
	handlers.SetupUserRoutes(app, handlers.NewUserHandler(leaderboard), auth)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	logger.Info("✅ Server running", zap.String("addr", "http://localhost:"+cfg.Port))
	logger.Info("✅ Catalog refresh scheduled", zap.Duration("interval", cfg.CatalogRefreshInterval))
	logger.Info("✅ CORS configured", zap.String("origins", allowedOrigins))

	<-ctx.Done()
	logger.Info("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := catalogScheduler.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
}

// jsonErrorHandler keeps fiber's own errors (404, 405, body limits) in the {error} shape.
func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error."
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
		message = fe.Message
	} else {
		logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": message})
}
