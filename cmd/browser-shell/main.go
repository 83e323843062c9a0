package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/config"
	"github.com/vertextoedge/browser-shell/internal/logger"
	"github.com/vertextoedge/browser-shell/internal/service/server"
	"github.com/vertextoedge/browser-shell/internal/session"
)

const version = "0.1.0"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	zapLogger := logger.GetZapLogger()
	zapLogger.Info("starting browser-shell",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	sess, err := session.New(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to create session", zap.Error(err))
	}

	if err := sess.OpenHomeTab(); err != nil {
		zapLogger.Error("failed to open home tab", zap.Error(err))
	}

	// Create HTTP server
	serverCfg := &server.Config{
		BindAddr:         cfg.HTTP.BindAddr,
		Username:         cfg.HTTP.Username,
		Password:         cfg.HTTP.Password,
		ProgressInterval: cfg.Downloads.GetProgressReportInterval(),
		ReadTimeout:      cfg.HTTP.GetReadTimeout(),
		WriteTimeout:     cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:      cfg.HTTP.GetIdleTimeout(),
	}
	httpServer := server.New(serverCfg, sess, zapLogger.Named("http"))

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start HTTP server
	go func() {
		if err := httpServer.Start(); err != nil {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Start maintenance service
	go func() {
		if err := sess.Maintenance.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	zapLogger.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("download_dir", sess.Downloads.DownloadDir()),
	)
	<-sigChan

	zapLogger.Info("shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	if err := sess.Close(); err != nil {
		zapLogger.Error("failed to close session", zap.Error(err))
	}

	zapLogger.Info("application stopped successfully")
}
