package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Genetic algorithm based school timetable generation service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, result caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	datasetRepo := repository.NewDatasetRepository(db)
	generationRepo := repository.NewGenerationRepository(db)
	resultCache := repository.NewResultCache(redisClient, cfg.Results.CacheTTL, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:        cfg.JWT.Secret,
		TokenExpiry:   cfg.JWT.Expiration,
		Issuer:        cfg.JWT.Issuer,
		AdminEmail:    cfg.Admin.Email,
		AdminPassword: cfg.Admin.Password,
		AdminName:     cfg.Admin.FullName,
	})
	if err := authSvc.EnsureAdmin(ctx); err != nil {
		logr.Sugar().Fatalw("failed to bootstrap admin account", "error", err)
	}

	datasetSvc := service.NewDatasetService(datasetRepo, validate, logr)
	generationSvc := service.NewGenerationService(generationRepo, datasetRepo, resultCache, metrics, validate, logr, service.GenerationServiceConfig{
		ProgressInterval: cfg.Generator.ProgressInterval,
		Workers:          cfg.Generator.Workers,
	})

	queue := jobs.NewQueue("timetable_generation", generationSvc.Process, jobs.QueueConfig{
		Workers:    1,
		BufferSize: cfg.Generator.QueueBuffer,
		MaxRetries: cfg.Generator.QueueRetries,
		Logger:     logr,
	})
	generationSvc.SetQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()

	if err := generationSvc.RecoverQueued(ctx, cfg.Generator.RecoverLimit); err != nil {
		logr.Sugar().Warnw("failed to recover queued runs", "error", err)
	}

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(generationSvc, exportStore, signer, logr, service.ExportConfig{
		DownloadPath: cfg.APIPrefix + "/exports/download",
		ResultTTL:    cfg.Exports.ResultTTL,
	})
	exportSvc.StartCleanup(ctx, cfg.Exports.CleanupInterval)

	authHandler := handler.NewAuthHandler(authSvc)
	datasetHandler := handler.NewDatasetHandler(datasetSvc)
	generationHandler := handler.NewGenerationHandler(generationSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)
		api.GET("/exports/download", generationHandler.Download)

		protected := api.Group("", middleware.JWT(authSvc))
		{
			protected.GET("/auth/me", authHandler.Me)

			protected.GET("/datasets", datasetHandler.List)
			protected.GET("/datasets/:id", datasetHandler.Get)

			protected.GET("/generations", generationHandler.ListRuns)
			protected.GET("/generations/:id", generationHandler.GetRun)
			protected.GET("/generations/:id/result", generationHandler.GetResult)
			protected.GET("/generations/:id/export", generationHandler.Export)

			admin := protected.Group("", middleware.RequireRoles(models.RoleAdmin))
			{
				admin.POST("/datasets", datasetHandler.Create)
				admin.PUT("/datasets/:id", datasetHandler.Update)
				admin.DELETE("/datasets/:id", datasetHandler.Delete)

				admin.POST("/generations", generationHandler.Generate)

				admin.GET("/system/stats", metricsHandler.Stats)
			}
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
