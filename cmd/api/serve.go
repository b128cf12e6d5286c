package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/redmonkez12/go-account-service/internal/account"
	"github.com/redmonkez12/go-account-service/internal/auth"
	"github.com/redmonkez12/go-account-service/internal/cleanup"
	"github.com/redmonkez12/go-account-service/internal/config"
	httpServer "github.com/redmonkez12/go-account-service/internal/http"
	"github.com/redmonkez12/go-account-service/internal/logging"
	"github.com/redmonkez12/go-account-service/internal/metrics"
	"github.com/redmonkez12/go-account-service/internal/ratelimit"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the unverified-account sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "create tables and indexes before serving")

	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"token_format", cfg.Auth.TokenFormat,
	)

	db, err := initDB(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if migrate {
		if err := runMigrations(ctx, db, logger); err != nil {
			return err
		}
	}

	redisClient, err := initRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	// Interface-typed so a disabled Redis leaves them nil
	var (
		rateLimiter auth.RateLimiter
		revocations auth.RevocationStore
	)
	if redisClient != nil {
		defer redisClient.Close()
		rateLimiter = ratelimit.NewLimiter(redisClient, ratelimit.DefaultConfig())
		revocations = auth.NewRedisRevocationStore(redisClient)
	}

	tokenService, err := newTokenService(cfg.Auth)
	if err != nil {
		return err
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}

	m := metrics.New()
	accountRepo := account.NewRepository(db)

	opts := []auth.ServiceOption{auth.WithMetrics(m)}
	if revocations != nil {
		opts = append(opts, auth.WithRevocations(revocations))
	}

	authService := auth.NewService(
		accountRepo,
		notifier,
		tokenService,
		auth.NewArgon2idHasher(auth.DefaultArgon2Params()),
		logger,
		auth.ServiceConfig{
			SessionDuration: cfg.Auth.SessionDuration,
			FrontendURL:     cfg.Email.FrontendURL,
		},
		opts...,
	)

	authHandler := auth.NewHandler(authService, rateLimiter, cfg.Auth.CookieName, !cfg.Server.IsDevelopment())
	authMiddleware := auth.NewMiddleware(tokenService, revocations, cfg.Auth.CookieName)

	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, m, db.PingContext, logger)
	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	sweeper := cleanup.NewSweeper(
		cleanup.Config{Interval: cfg.Sweeper.Interval, Retention: cfg.Sweeper.Retention},
		accountRepo,
		logger,
		cleanup.WithMetrics(m),
	)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		sweeper.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}
