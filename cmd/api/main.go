package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/jpmendieta/taskflow-api/api/swagger"
	"github.com/jpmendieta/taskflow-api/internal/handler"
	"github.com/jpmendieta/taskflow-api/internal/middleware"
	"github.com/jpmendieta/taskflow-api/internal/repository"
	"github.com/jpmendieta/taskflow-api/internal/service"
	"github.com/jpmendieta/taskflow-api/pkg/cache"
	"github.com/jpmendieta/taskflow-api/pkg/config"
	"github.com/jpmendieta/taskflow-api/pkg/database"
	"github.com/jpmendieta/taskflow-api/pkg/logger"
	"github.com/jpmendieta/taskflow-api/pkg/mailer"
	corsmiddleware "github.com/jpmendieta/taskflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/jpmendieta/taskflow-api/pkg/middleware/requestid"
	"github.com/jpmendieta/taskflow-api/pkg/storage"
)

// @title Taskflow API
// @version 1.0.0
// @description Task assignment backend with lifecycle mail notifications
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("cache unavailable, continuing without it", zap.Error(err))
		redisClient = nil
	}

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	sender := mailer.NewSMTPSender(cfg.SMTP, logr)
	notifier := service.NewNotificationService(sender, metrics, cfg.Notifications, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	notifier.Start(ctx)
	defer notifier.Stop()

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	validate := service.NewValidator()
	userSvc := service.NewUserService(userRepo, taskRepo, cacheSvc, validate, logr)
	taskSvc := service.NewTaskService(taskRepo, userRepo, notifier, cacheSvc, validate, logr)
	var exportStore *storage.ExportStore
	var exportSigner *storage.TokenSigner
	if cfg.Export.Enabled && cfg.Export.SigningSecret != "" {
		exportStore, err = storage.NewExportStore(cfg.Export.Dir)
		if err != nil {
			logr.Warn("export storage unavailable, serving exports inline only", zap.Error(err))
		} else {
			exportSigner = storage.NewTokenSigner(cfg.Export.SigningSecret, cfg.Export.URLTTL)
		}
	}
	exportSvc := service.NewExportService(taskRepo, exportStore, exportSigner, cfg.Export.Enabled, logr)
	exportSvc.Cleanup(cfg.Export.URLTTL)

	users := handler.NewUserHandler(userSvc)
	tasks := handler.NewTaskHandler(taskSvc, exportSvc)
	observability := handler.NewMetricsHandler(metrics, db, redisClient)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", observability.Health)
	r.GET("/ready", observability.Ready)
	r.GET("/metrics", observability.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/users", users.List)
		api.POST("/users", users.Create)
		api.GET("/users/:id", users.Get)
		api.PUT("/users/:id", users.Update)
		api.PATCH("/users/:id", users.Patch)
		api.DELETE("/users/:id", users.Delete)

		api.GET("/tasks", tasks.List)
		api.POST("/tasks", tasks.Create)
		api.GET("/tasks/export", tasks.Export)
		api.GET("/tasks/export/download", tasks.Download)
		api.GET("/tasks/:id", tasks.Get)
		api.PUT("/tasks/:id", tasks.Update)
		api.PATCH("/tasks/:id", tasks.Patch)
		api.DELETE("/tasks/:id", tasks.Delete)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
