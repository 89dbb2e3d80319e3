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

	_ "github.com/streamtube/user-api/api/swagger"
	"github.com/streamtube/user-api/internal/handler"
	"github.com/streamtube/user-api/internal/middleware"
	"github.com/streamtube/user-api/internal/repository"
	"github.com/streamtube/user-api/internal/service"
	"github.com/streamtube/user-api/pkg/cache"
	"github.com/streamtube/user-api/pkg/config"
	"github.com/streamtube/user-api/pkg/database"
	"github.com/streamtube/user-api/pkg/jobs"
	"github.com/streamtube/user-api/pkg/logger"
	corsmiddleware "github.com/streamtube/user-api/pkg/middleware/cors"
	reqidmiddleware "github.com/streamtube/user-api/pkg/middleware/requestid"
	"github.com/streamtube/user-api/pkg/storage"
)

const (
	tempUploadTTL      = time.Hour
	tempCleanupEvery   = 15 * time.Minute
	shutdownGracePeriod = 10 * time.Second
)

// @title StreamTube User API
// @version 1.0.0
// @description Account registration and dual-token session lifecycle service
// @BasePath /api/v1
// @schemes http https

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
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	media, err := storage.NewMediaStorage(cfg.Media)
	if err != nil {
		logr.Sugar().Fatalw("failed to init media storage", "error", err)
	}

	tokens, err := service.NewTokenService(cfg.JWT)
	if err != nil {
		logr.Sugar().Fatalw("failed to init token service", "error", err)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)

	var authService *service.AuthService
	if cfg.Login.RateLimitEnabled {
		limiter := service.NewRedisLoginLimiter(redisClient, cfg.Login.MaxAttempts, cfg.Login.AttemptWindow)
		authService = service.NewAuthService(userRepo, tokens, nil, media, limiter, metrics, validate, logr)
	} else {
		authService = service.NewAuthService(userRepo, tokens, nil, media, nil, metrics, validate, logr)
	}
	userService := service.NewUserService(userRepo, media, logr)

	authHandler := handler.NewAuthHandler(authService, media, cfg.Cookie, tokens.AccessTTL(), tokens.RefreshTTL())
	userHandler := handler.NewUserHandler(userService, media)
	metricsHandler := handler.NewMetricsHandler(metrics, db, redisClient)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanupQueue := jobs.NewQueue("media-temp-cleanup", func(ctx context.Context, job jobs.Job) error {
		removed, err := media.CleanupTempOlderThan(tempUploadTTL)
		if err != nil {
			return err
		}
		if len(removed) > 0 {
			logr.Sugar().Infow("removed stale temp uploads", "count", len(removed))
		}
		return nil
	}, jobs.QueueConfig{Workers: cfg.Media.CleanupWorkers, Logger: logr})
	cleanupQueue.Start(ctx)
	defer cleanupQueue.Stop()

	go func() {
		ticker := time.NewTicker(tempCleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = cleanupQueue.Enqueue(jobs.Job{Type: "cleanup"})
			}
		}
	}()

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
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.Static("/media", media.BaseDir())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		}

		users := api.Group("/users", middleware.JWT(authService))
		{
			users.GET("/me", userHandler.Me)
			users.PATCH("/me/avatar", userHandler.UpdateAvatar)
			users.PATCH("/me/cover-image", userHandler.UpdateCoverImage)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown incomplete", "error", err)
	}
}
