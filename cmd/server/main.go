package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"magiainterna/backend/internal/cache"
	"magiainterna/backend/internal/config"
	"magiainterna/backend/internal/format"
	"magiainterna/backend/internal/httpapi"
	"magiainterna/backend/internal/logging"
	"magiainterna/backend/internal/receipts"
	"magiainterna/backend/internal/service"
	"magiainterna/backend/internal/store"
	"magiainterna/backend/internal/store/memory"
	pgstore "magiainterna/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	if !format.SetLocation(cfg.ShopTimezone) {
		logger.Warn("unknown shop time zone, keeping default", zap.String("timezone", cfg.ShopTimezone), zap.String("using", format.Location().String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("close dependency", zap.Error(err))
			}
		}
	}()

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		closers = append(closers, pg.Close)
		if cfg.DBAutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		repo = pg
		logger.Info("repository ready", zap.String("backend", "postgres"), zap.Bool("auto_migrate", cfg.DBAutoMigrate))
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository ready", zap.String("backend", "memory"))
	}

	analyticsCache := cache.AnalyticsCache(cache.NoopAnalyticsCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisAnalyticsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
			_ = redisCache.Close()
		} else {
			analyticsCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("analytics cache ready", zap.String("backend", "redis"))
		}
	}

	receiptStorage := receipts.Storage(receipts.Disabled{})
	if cfg.MinioEndpoint != "" {
		minioStorage, err := receipts.NewMinio(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Warn("receipt storage unavailable, uploads disabled", zap.Error(err))
		} else {
			receiptStorage = minioStorage
			logger.Info("receipt storage ready", zap.String("bucket", cfg.MinioBucket))
		}
	}

	svc := service.New(repo, service.Options{
		Cache:             analyticsCache,
		CacheTTL:          time.Duration(cfg.AnalyticsCacheTTLSeconds) * time.Second,
		Receipts:          receiptStorage,
		Logger:            logger.Named("service"),
		LowStockThreshold: cfg.LowStockThreshold,
	})

	auth, err := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, logger.Named("auth"))
	if err != nil {
		return err
	}
	if err := auth.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return err
	}

	api, err := httpapi.New(svc, auth, cfg.AllowedOrigin, logger.Named("http"))
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Magia Interna backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-sig:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}

var weakPasswords = map[string]bool{
	"admin": true, "admin123": true, "administrador": true, "password": true,
	"password123": true, "contraseña": true, "1234567890": true, "qwertyuiop": true,
	"magiainterna": true, "magia123": true, "changeme": true, "dev-change-me": true,
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if strings.TrimSpace(cfg.AdminUsername) == "" {
		return fmt.Errorf("ADMIN_USERNAME must not be empty")
	}
	if len(cfg.AdminPassword) < 10 {
		return fmt.Errorf("ADMIN_PASSWORD must be set and at least 10 characters")
	}
	if err := validatePasswordStrength(cfg.AdminPassword, cfg.AdminUsername); err != nil {
		return fmt.Errorf("ADMIN_PASSWORD is too weak: %w", err)
	}
	return nil
}

// validatePasswordStrength rejects known-weak passwords, passwords that
// contain the username, and passwords made of a single repeated character.
func validatePasswordStrength(password string, username string) error {
	lowered := strings.ToLower(password)
	if weakPasswords[lowered] {
		return fmt.Errorf("common password not allowed")
	}
	if username != "" && strings.Contains(lowered, strings.ToLower(username)) {
		return fmt.Errorf("password must not contain the username")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character password not allowed")
	}
	return nil
}
