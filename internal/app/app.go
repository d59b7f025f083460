package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/portfolio-backend/internal/config"
	"github.com/prperemyshlev/portfolio-backend/internal/domain"
	"github.com/prperemyshlev/portfolio-backend/internal/handler"
	"github.com/prperemyshlev/portfolio-backend/internal/service"
	"github.com/prperemyshlev/portfolio-backend/internal/utils"
	"github.com/prperemyshlev/portfolio-backend/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	infra    Infrastructure
	config   *config.Config
	router   *gin.Engine
	server   *http.Server
	reaper   *service.Reaper
	notifier *service.Notifier

	stopReaper context.CancelFunc
	reaperDone chan struct{}
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	logger := infra.Logger()
	repos := infra.Repositories()

	metrics, err := service.NewMetrics(infra.Meter())
	if err != nil {
		return nil, err
	}

	validator, err := utils.NewValidator()
	if err != nil {
		return nil, err
	}

	jwtManager := utils.NewJWTManager(tokenSpecs(cfg.Tokens))

	blacklistService := service.NewTokenBlacklistService(infra.Redis())
	rateLimiter := service.NewRateLimiter(infra.Redis(), cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow.Duration)
	reaper := service.NewReaper(
		repos.Cleanup,
		repos.User,
		cfg.Reaper.UnverifiedTTL.Duration,
		cfg.Reaper.PollInterval.Duration,
		cfg.Reaper.BatchSize,
		metrics,
		logger,
	)
	notifier := service.NewNotifier(infra.Mailer(), cfg.ClientURL, cfg.Mail.SendTimeout.Duration, metrics, logger)
	healthChecker := NewHealthChecker(infra)

	authService := service.NewAuthService(
		repos.User,
		jwtManager,
		utils.NewPasswordHasher(cfg.Security.BCryptCost),
		validator,
		blacklistService,
		reaper,
		notifier,
		metrics,
		logger,
	)

	authHandler := handler.NewAuthHandler(authService, handler.CookieConfig{
		MaxAge: cfg.Tokens.CookieMaxAge.WholeSeconds(),
		Secure: cfg.IsProduction(),
	}, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(logger))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, authHandler, authService, rateLimiter, healthChecker, infra.MetricsHandler(), logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:    infra,
		config:   cfg,
		router:   router,
		server:   srv,
		reaper:   reaper,
		notifier: notifier,
	}, nil
}

func tokenSpecs(cfg config.TokensConfig) map[domain.TokenKind]utils.TokenSpec {
	return map[domain.TokenKind]utils.TokenSpec{
		domain.TokenKindAccess:        {Secret: cfg.AccessSecret, TTL: cfg.AccessExpiresIn.Duration},
		domain.TokenKindRefresh:       {Secret: cfg.RefreshSecret, TTL: cfg.RefreshExpiresIn.Duration},
		domain.TokenKindEmailVerify:   {Secret: cfg.EmailVerifySecret, TTL: cfg.EmailVerifyExpiresIn.Duration},
		domain.TokenKindResetPassword: {Secret: cfg.ResetPasswordSecret, TTL: cfg.ResetPasswordExpiresIn.Duration},
	}
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(
	router *gin.Engine,
	authHandler *handler.AuthHandler,
	authService service.AuthService,
	rateLimiter *service.RateLimiter,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
	logger *zap.Logger,
) {
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "server is running")
	})
	router.GET("/metrics", observability.GinHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	limit := handler.RateLimitMiddleware(rateLimiter, logger)
	auth := handler.AuthMiddleware(authService, logger)

	api := router.Group("/api/v1")
	{
		users := api.Group("/users")
		{
			users.POST("/create", limit, authHandler.Register)
			users.GET("/verify-email/:token", authHandler.VerifyEmail)
			users.POST("/login", limit, authHandler.Login)
			users.POST("/refresh-token", authHandler.RefreshToken)
			users.POST("/logout", auth, authHandler.Logout)
			users.GET("/verify", auth, authHandler.CurrentUser)
			users.POST("/forgot-password", limit, authHandler.ForgotPassword)
			users.POST("/reset-password/:token", authHandler.ResetPassword)
			users.PUT("/update-username", auth, authHandler.UpdateUsername)
			users.PUT("/change-password", auth, authHandler.ChangePassword)
			users.DELETE("/delete-account", auth, authHandler.DeleteAccount)
		}
	}
}

// startReaper runs the unverified-account reaper until Shutdown
func (a *App) startReaper(ctx context.Context) {
	ctx, a.stopReaper = context.WithCancel(ctx)
	a.reaperDone = make(chan struct{})

	go func() {
		defer close(a.reaperDone)
		a.reaper.Run(ctx)
	}()
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	a.startReaper(ctx)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

// Shutdown stops accepting requests, lets the reaper and pending emails
// finish, then releases the infrastructure
func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	serverErr := a.server.Shutdown(ctx)

	if a.stopReaper != nil {
		a.stopReaper()
		select {
		case <-a.reaperDone:
		case <-ctx.Done():
		}
	}

	mailErr := a.notifier.Wait(ctx)
	infraErr := a.infra.Shutdown(ctx)

	err := errors.Join(serverErr, mailErr, infraErr)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
