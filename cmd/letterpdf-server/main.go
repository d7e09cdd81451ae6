// Command letterpdf-server serves the letter export HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lvillar/letterpdf/config"
	"github.com/lvillar/letterpdf/internal/app"
	"github.com/lvillar/letterpdf/logger"
	"github.com/lvillar/letterpdf/server"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "letterpdf-server: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "letterpdf-server: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	if cfg.Auth.JWTSecret == "" {
		log.Warn("no JWT secret configured, API is unauthenticated")
	}
	srv := server.New(a.Exporter, cfg.Server, cfg.Auth.JWTSecret, log)
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error("server failed", zap.Error(err))
		return
	}
	log.Info("server exited")
}
