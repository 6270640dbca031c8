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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sma-docs-api/api/swagger"
	"github.com/noah-isme/sma-docs-api/internal/handler"
	"github.com/noah-isme/sma-docs-api/internal/middleware"
	"github.com/noah-isme/sma-docs-api/internal/models"
	"github.com/noah-isme/sma-docs-api/internal/repository"
	"github.com/noah-isme/sma-docs-api/internal/service"
	"github.com/noah-isme/sma-docs-api/pkg/cache"
	"github.com/noah-isme/sma-docs-api/pkg/config"
	"github.com/noah-isme/sma-docs-api/pkg/database"
	"github.com/noah-isme/sma-docs-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-docs-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-docs-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-docs-api/pkg/storage"
)

// @title SMA Docs API
// @version 1.0.0
// @description Document governance for school administration: typed uploads, review gates, and an append-only audit trail.
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching and notifications disabled", "error", err)
		redisClient = nil
	}

	fileStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	typeRepo := repository.NewDocumentTypeRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	requestRepo := repository.NewReviewRequestRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	var cacheRepo *repository.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	metricsService := service.NewMetricsService()

	notificationService := service.NewNotificationService(redisClient, metricsService, logr, service.NotificationServiceConfig{
		Enabled:           cfg.Notifications.Enabled && redisClient != nil,
		Channel:           cfg.Notifications.Channel,
		WorkerConcurrency: cfg.Notifications.WorkerConcurrency,
		WorkerRetries:     cfg.Notifications.WorkerRetries,
	})

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "sma-docs-api",
	})
	userService := service.NewUserService(userRepo, validate, logr)
	permissionService := service.NewPermissionService(userRepo, logr)

	typeService := service.NewDocumentTypeService(typeRepo, docRepo, permissionService, cacheRepo, metricsService, logr, service.DocumentTypeServiceConfig{
		CacheEnabled: cfg.TypeCache.Enabled && cacheRepo != nil,
		CacheTTL:     cfg.TypeCache.CacheTTL,
	})

	documentService := service.NewDocumentService(docRepo, typeService, permissionService, historyRepo, fileStore, signer, notificationService, logr, service.DocumentServiceConfig{
		MaxFileSize:  cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	})
	requestService := service.NewReviewRequestService(requestRepo, docRepo, typeService, permissionService, historyRepo, fileStore, notificationService, logr)
	historyService := service.NewHistoryService(historyRepo, logr)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	typeHandler := handler.NewDocumentTypeHandler(typeService)
	documentHandler := handler.NewDocumentHandler(documentService, metricsService)
	requestHandler := handler.NewReviewRequestHandler(requestService, metricsService)
	historyHandler := handler.NewHistoryHandler(historyService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	authed := auth.Group("", middleware.JWT(authService))
	authed.POST("/logout", authHandler.Logout)
	authed.POST("/change-password", authHandler.ChangePassword)
	authed.GET("/me", authHandler.Me)

	users := api.Group("/users", middleware.JWT(authService))
	users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
	users.POST("", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
	users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Update)

	types := api.Group("/document-types", middleware.JWT(authService))
	types.GET("", typeHandler.List)
	types.GET("/:id", typeHandler.Get)
	types.GET("/:id/uploaders", typeHandler.Uploaders)
	types.POST("", middleware.RequireRoles(models.RoleAdmin), typeHandler.Create)
	types.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), typeHandler.Update)
	types.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), typeHandler.Delete)

	documents := api.Group("/documents", middleware.JWT(authService))
	documents.POST("", documentHandler.Upload)
	documents.GET("", documentHandler.List)
	documents.GET("/:id", documentHandler.Get)
	documents.GET("/:id/download", documentHandler.Download)
	documents.GET("/:id/history", historyHandler.ListByDocument)
	documents.POST("/:id/approve", middleware.RequireRoles(models.ReviewerRoles...), documentHandler.Approve)
	documents.POST("/:id/reject", middleware.RequireRoles(models.ReviewerRoles...), documentHandler.Reject)

	requests := api.Group("/review-requests", middleware.JWT(authService))
	requests.POST("", requestHandler.Create)
	requests.GET("", requestHandler.List)
	requests.GET("/:id", requestHandler.Get)
	requests.POST("/:id/approve", middleware.RequireRoles(models.ReviewerRoles...), requestHandler.Approve)
	requests.POST("/:id/reject", middleware.RequireRoles(models.ReviewerRoles...), requestHandler.Reject)

	history := api.Group("/history", middleware.JWT(authService))
	history.GET("", historyHandler.List)
	history.GET("/export", historyHandler.Export)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationService.Start(ctx)
	defer notificationService.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
