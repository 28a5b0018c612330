package app

import (
	"context"
	"fmt"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mediabud/recsys/internal/config"
	"github.com/mediabud/recsys/internal/database"
	"github.com/mediabud/recsys/internal/handlers"
	"github.com/mediabud/recsys/internal/middleware"
	"github.com/mediabud/recsys/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	services, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	app.handlers = handlers.New(app.logger, services)
	app.setupRouter()

	if services.Scheduler != nil {
		services.Scheduler.Start()
	}

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.services.Scheduler != nil {
		a.services.Scheduler.Stop()
	}
	if a.services.MessageBus != nil {
		if err := a.services.MessageBus.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing message bus")
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/health", a.handlers.Health.Health)
	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/recommendations/:contentType/:userId", a.handlers.Recommendation.GetRecommendations)
		api.GET("/similar/:contentType/:itemId", a.handlers.Recommendation.GetSimilarItems)
		api.GET("/popular/:contentType", a.handlers.Recommendation.GetPopularItems)

		admin := api.Group("/admin")
		admin.Use(middleware.Auth(a.services.Auth, a.logger))
		{
			admin.POST("/train", a.handlers.Admin.TrainAll)
			admin.POST("/train/:contentType", a.handlers.Admin.Train)
		}
	}

	a.router = router
}
