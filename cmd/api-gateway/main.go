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
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/commerce-admin-api/api/swagger"
	"github.com/noah-isme/commerce-admin-api/internal/auth"
	"github.com/noah-isme/commerce-admin-api/internal/handler"
	"github.com/noah-isme/commerce-admin-api/internal/middleware"
	"github.com/noah-isme/commerce-admin-api/internal/models"
	"github.com/noah-isme/commerce-admin-api/internal/repository"
	"github.com/noah-isme/commerce-admin-api/internal/service"
	"github.com/noah-isme/commerce-admin-api/pkg/cache"
	"github.com/noah-isme/commerce-admin-api/pkg/config"
	"github.com/noah-isme/commerce-admin-api/pkg/database"
	"github.com/noah-isme/commerce-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/commerce-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/commerce-admin-api/pkg/middleware/requestid"
)

// @title Commerce Admin API
// @version 1.0.0
// @description Session and authentication API for the commerce admin panel
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	app, err := buildApp(ctx, cfg, db, logr)
	if err != nil {
		logr.Fatal("failed to build application", zap.Error(err))
	}
	defer app.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

type application struct {
	router  *gin.Engine
	audit   *service.AuditService
	limiter *repository.RateLimitRepository
}

func (a *application) close() {
	a.audit.Stop()
	if a.limiter != nil {
		_ = a.limiter.Close()
	}
}

// newEngine returns a bare router whose ClientIP only honours forwarding
// headers sent by trustedProxies.
func newEngine(trustedProxies []string) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	return r, nil
}

func buildApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, logr *zap.Logger) (*application, error) {
	r, err := newEngine(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	codec, err := auth.NewTokenCodec(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	hasher := auth.NewPasswordHasher(cfg.Session.BcryptCost)
	validate := validator.New()

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db, cfg.Session.MaxPerUser)
	activityRepo := repository.NewActivityRepository(db)

	auditSvc := service.NewAuditService(activityRepo, metrics, logr.Named("audit"), service.AuditConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
		RetryDelay: cfg.Audit.RetryDelay,
	})
	// Stop drains the queue after the server has shut down.
	auditSvc.Start(context.Background())

	sessionSvc := service.NewSessionService(service.SessionDeps{
		Users:     userRepo,
		Sessions:  sessionRepo,
		Tokens:    codec,
		Refresh:   auth.NewRefreshTokenGenerator(cfg.Session.RefreshTokenBytes),
		Passwords: hasher,
		Audit:     auditSvc,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr.Named("session"),
	}, service.SessionConfig{RefreshTokenTTL: cfg.Session.RefreshTokenTTL})
	go sessionSvc.RunSweeper(ctx, cfg.Session.SweepInterval)

	identitySvc := service.NewIdentityService(codec, userRepo, logr.Named("identity"))
	userSvc := service.NewUserService(service.UserDeps{
		Users:     userRepo,
		Devices:   sessionRepo,
		Activity:  auditSvc,
		Hasher:    hasher,
		Audit:     auditSvc,
		Validator: validate,
		Logger:    logr.Named("user"),
	})

	app := &application{audit: auditSvc}

	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.RateLimit.Enabled {
		var backend middleware.RateLimitBackend
		switch cfg.RateLimit.Backend {
		case config.RateLimitBackendRedis:
			client, err := cache.NewRedis(ctx, cfg.Redis)
			if err != nil {
				auditSvc.Stop()
				return nil, err
			}
			app.limiter = repository.NewRateLimitRepository(client)
			backend = app.limiter
		default:
			memory := middleware.NewMemoryRateLimiter(0)
			go memory.Run(ctx)
			backend = memory
		}
		limit = middleware.RateLimit(backend, middleware.RateLimitConfig{
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,
		}, metrics, logr.Named("ratelimit"))
	}

	cookies := handler.CookieConfig{Secure: cfg.Cookie.Secure, Domain: cfg.Cookie.Domain}
	authHandler := handler.NewAuthHandler(sessionSvc, userSvc, cookies)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	userHandler := handler.NewUserHandler(userSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db)

	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.RequestMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requireAuth := middleware.RequireAuth(identitySvc)
	api := r.Group(cfg.APIPrefix)
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/register", limit, authHandler.Register)
		authGroup.POST("/login", limit, authHandler.Login)
		authGroup.POST("/refresh", limit, authHandler.Refresh)
		authGroup.DELETE("/logout", requireAuth, authHandler.Logout)
		authGroup.DELETE("/logout-all", requireAuth, authHandler.LogoutAll)

		api.GET("/me", requireAuth, userHandler.Me)

		sessions := api.Group("/sessions", requireAuth)
		sessions.GET("", sessionHandler.List)
		sessions.DELETE("/others", sessionHandler.DeleteOthers)
		sessions.DELETE("/:id", sessionHandler.Delete)

		users := api.Group("/users", requireAuth, middleware.RequireCapability(models.CapManageUsers))
		users.GET("/:id/devices", userHandler.Devices)
		users.GET("/:id/activity", userHandler.Activity)
	}

	app.router = r
	return app, nil
}
