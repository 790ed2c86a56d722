package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/campusgate/internal/auth"
	"github.com/BradenHooton/campusgate/internal/background"
	"github.com/BradenHooton/campusgate/internal/config"
	"github.com/BradenHooton/campusgate/internal/database"
	"github.com/BradenHooton/campusgate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/campusgate/internal/middleware"
	"github.com/BradenHooton/campusgate/internal/repositories"
	"github.com/BradenHooton/campusgate/internal/routes"
	"github.com/BradenHooton/campusgate/internal/services"
	pkghttp "github.com/BradenHooton/campusgate/pkg/http"
	pkglogger "github.com/BradenHooton/campusgate/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		logger.Warn("unknown log level, using info", slog.String("level", cfg.Server.LogLevel))
	}
	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Store.Backend),
		slog.String("mail_driver", cfg.Email.Driver))

	// Initialize database
	db, err := database.NewConnection(context.Background(), &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	healthChecks := map[string]handlers.Pinger{
		"postgres": handlers.PingFunc(db.HealthCheck),
	}

	// Initialize repositories
	adminRepo := repositories.NewAdminRepository(db)

	var (
		attemptStore   services.LoginAttemptStore
		otpStore       services.OTPStore
		cleanupManager *background.CleanupManager
	)

	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		client, err := database.NewRedisClient(cfg.Store.RedisURL, logger)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer client.Close()

		attemptStore = repositories.NewLoginAttemptRedisStore(client, cfg.Auth.AttemptRetention)
		otpStore = repositories.NewOTPRedisStore(client, 2*cfg.Auth.OTPTTL)
		healthChecks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	default:
		loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
		otpRepo := repositories.NewOTPRepository(db)
		attemptStore = loginAttemptRepo
		otpStore = otpRepo

		cleanupManager = background.NewCleanupManager(otpRepo, loginAttemptRepo, background.CleanupConfig{
			Interval:         cfg.Auth.CleanupInterval,
			OTPTTL:           cfg.Auth.OTPTTL,
			AttemptRetention: cfg.Auth.AttemptRetention,
		}, logger)
	}

	// Mail delivery for one-time codes
	mailer, err := newMailer(context.Background(), &cfg.Email, logger)
	if err != nil {
		logger.Error("failed to initialize mailer", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize token managers
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenExpiry)
	csrfManager := auth.NewCSRFTokenManager(cfg.Auth.JWTSecret)

	var totpManager *auth.TOTPManager
	if len(cfg.Auth.TOTPEncryptionKey) > 0 {
		totpManager, err = auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, cfg.Auth.TOTPIssuer)
		if err != nil {
			logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Timing delay for auth security
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs:  cfg.Auth.TimingDelayRandomMs,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize services
	tracker := services.NewLoginAttemptTracker(attemptStore, services.LockoutConfig{
		Threshold: cfg.Auth.LockoutThreshold,
		Duration:  cfg.Auth.LockoutDuration,
	}, logger)
	otpService := services.NewOTPService(otpStore, mailer, services.OTPConfig{
		TTL:         cfg.Auth.OTPTTL,
		Length:      cfg.Auth.OTPLength,
		SendTimeout: cfg.Email.SendTimeout,
		MaxAttempts: cfg.Auth.OTPMaxAttempts,
	}, logger)
	authService := services.NewAuthService(adminRepo, tracker, otpService, tokenManager, totpManager, timingDelay,
		services.AuthConfig{AdminEmail: cfg.Admin.Email, ResetCooldown: cfg.Auth.PasswordResetCooldown}, logger, auditLogger)
	accountService := services.NewAccountService(adminRepo, totpManager, 0, logger, auditLogger)

	// Bootstrap the admin account if configured
	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := accountService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			logger.Error("failed to ensure admin account", slog.Any("error", err))
		}
		cancel()
	} else {
		logger.Info("ADMIN_EMAIL or ADMIN_PASSWORD not set, skipping admin account seeding")
	}

	ipResolver, err := pkghttp.NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, csrfManager, handlers.AuthHandlerConfig{
		Cookies: auth.CookieConfig{
			Domain:   cfg.Auth.CookieDomain,
			Secure:   cfg.Auth.CookieSecure,
			SameSite: cfg.Auth.CookieSameSite,
		},
		IPResolver: ipResolver,
		RetryAfter: cfg.Auth.LockoutDuration,
	}, logger)
	healthHandler := handlers.NewHealthHandler(healthChecks, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipResolver))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler:    authHandler,
		HealthHandler:  healthHandler,
		TokenValidator: tokenManager,
		CSRFManager:    csrfManager,
		IPResolver:     ipResolver,
		RateLimit:      middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Auth.RequestsPerMinute},
		Logger:         logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	if cleanupManager != nil {
		go cleanupManager.Start(cleanupCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	if cleanupManager != nil {
		cleanupManager.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// newMailer selects the one-time code delivery driver
func newMailer(ctx context.Context, cfg *config.EmailConfig, logger *slog.Logger) (services.Mailer, error) {
	switch cfg.Driver {
	case config.MailDriverSES:
		sesMailer, err := services.NewSESMailer(ctx, cfg.AWSRegion, cfg.FromAddress, logger)
		if err != nil {
			return nil, err
		}
		return sesMailer, nil
	case config.MailDriverSMTP:
		return services.NewSMTPMailer(services.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			UseTLS:      cfg.SMTPUseTLS,
			FromAddress: cfg.FromAddress,
		}), nil
	case config.MailDriverLog:
		logger.Warn("MAIL_DRIVER=log writes one-time codes to the log; do not use in production")
		return services.NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}
