// Package main is the entry point for the codeart API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"codeart/internal/config"
	"codeart/internal/core/datacontext"
	"codeart/internal/domain/auth"
	"codeart/internal/domain/order"
	v1 "codeart/internal/infrastructure/http/v1"
	"codeart/pkg/logger"
)

var version = "dev"

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	log.Infow("starting codeart server", "env", cfg.App.Env, "driver", cfg.Database.Driver)

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to open backend", "error", err)
	}
	defer be.Close()

	// --- Data context pool ---
	pool := datacontext.NewPool(cfg.PoolConfig(), datacontext.Options{
		Transactions: be.transactions,
		Locker:       be.locker,
		Publisher:    be.bus,
		Logger:       log.WithComponent("datacontext"),
	}, log)
	defer pool.Close(context.Background())

	var jwtService *auth.JWTService
	if cfg.Auth.JWTSecret != "" {
		jwtService = auth.NewJWTService(auth.DefaultJWTConfig(cfg.Auth.JWTSecret))
	} else {
		log.Warn("auth.jwt_secret is empty, bearer sessions are disabled")
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		AppName:      cfg.App.Name,
		Version:      version,
		Pool:         pool,
		Logger:       log,
		JWT:          jwtService,
		Orders:       order.NewService(be.orders, be.numbers),
		HealthChecks: be.checks,
		Info:         be.info,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Infow("server stopped", "contexts", pool.Stats())
}
