package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-account-service/internal/auth"
	"github.com/redmonkez12/go-account-service/internal/config"
	"github.com/redmonkez12/go-account-service/internal/database"
	"github.com/redmonkez12/go-account-service/internal/logging"
	"github.com/redmonkez12/go-account-service/internal/notify"
)

const connectAttempts = 5

var connectBackoff = 500 * time.Millisecond

// pingWithRetry retries ping with exponential backoff until it succeeds or
// the attempts run out
func pingWithRetry(ctx context.Context, logger *logging.Logger, target string, ping func(context.Context) error) error {
	backoff := retry.WithMaxRetries(connectAttempts-1, retry.NewExponential(connectBackoff))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := ping(ctx); err != nil {
			logger.Warn("connection attempt failed", "target", target, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// initDB initializes the database connection and returns a Bun DB instance
func initDB(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger) (*bun.DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pingWithRetry(ctx, logger, "postgres", sqlDB.PingContext); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return database.NewBunDB(sqlDB, database.DefaultPoolConfig()), nil
}

// initRedis returns nil when Redis is disabled
func initRedis(ctx context.Context, cfg config.RedisConfig, logger *logging.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		logger.Warn("redis disabled: rate limiting and session revocation are off")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := pingWithRetry(ctx, logger, "redis", ping); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}

// newTokenService picks the session token format
func newTokenService(cfg config.AuthConfig) (auth.TokenService, error) {
	switch cfg.TokenFormat {
	case "jwt":
		svc, err := auth.NewJWTService(cfg.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
		}
		return svc, nil
	case "paseto", "":
		svc, err := auth.NewPasetoService(cfg.PasetoKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PASETO service: %w", err)
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unknown session token format %q", cfg.TokenFormat)
	}
}

// newNotifier falls back to logging transports when SMTP or Twilio are not
// configured. Logged notifications expose codes and reset links, so outside
// development a missing transport is a startup error.
func newNotifier(cfg *config.Config, logger *logging.Logger) (*notify.Dispatcher, error) {
	dev := cfg.Server.IsDevelopment()

	var email notify.EmailSender
	switch {
	case cfg.Email.SMTPHost != "":
		email = notify.NewSMTPSender(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromAddress,
		)
	case dev:
		logger.Warn("SMTP_HOST not set: emails are logged instead of sent")
		email = notify.NewLogSender(logger)
	default:
		return nil, errors.New("SMTP_HOST is required outside development")
	}

	var voice notify.VoiceCaller
	switch {
	case cfg.Twilio.AccountSID != "":
		voice = notify.NewTwilioCaller(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
	case dev:
		logger.Warn("TWILIO_SID not set: verification calls are logged instead of placed")
		voice = notify.NewLogCaller(logger)
	default:
		return nil, errors.New("TWILIO_SID is required outside development")
	}

	return notify.NewDispatcher(email, voice, notify.Config{
		CallerNumber:    cfg.Twilio.PhoneNumber,
		VerificationTTL: auth.VerificationCodeTTL,
		ResetTokenTTL:   auth.ResetTokenTTL,
	}, logger)
}
