package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/overlaykit/relay/internal/buffer"
	"github.com/overlaykit/relay/internal/config"
	"github.com/overlaykit/relay/internal/desktop"
	"github.com/overlaykit/relay/internal/ingest"
	"github.com/overlaykit/relay/internal/registry"
	"github.com/overlaykit/relay/internal/server"
	"github.com/overlaykit/relay/internal/sse"
	"github.com/overlaykit/relay/internal/webhook"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load config first so the log level applies from the start
	cfg, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.Int("bufferCapacity", cfg.BufferCapacity),
		zap.Duration("desktopPingInterval", cfg.DesktopPingInterval),
		zap.Float64("webhookRateLimit", cfg.WebhookRateLimit),
		zap.Bool("webhookSignatureEnforced", cfg.WebhookSecret != ""),
	)

	// Process-wide pipeline state, owned here and injected downward
	reg := registry.New(logger)
	buf := buffer.NewStore(cfg.BufferCapacity)
	ing := ingest.New(buf, reg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := desktop.NewHub(reg, desktop.StaticValidator{}, cfg.DesktopPingInterval, logger)
	go hub.Run(ctx)

	sseHandler := sse.NewHandler(reg, cfg.SSESendBuffer, logger)

	var verifier webhook.Verifier
	if cfg.WebhookSecret != "" {
		verifier = webhook.NewHMACVerifier(cfg.WebhookSecret)
	} else {
		logger.Warn("WEBHOOK_SECRET not set, accepting unsigned webhooks")
		verifier = webhook.NoopVerifier{}
	}

	srv := server.NewServer(ing, buf, hub, verifier, logger)

	router, err := server.NewRouter(srv, sseHandler, hub, cfg.WebhookRateLimit, cfg.WebhookBurst, logger)
	if err != nil {
		logger.Error("failed to create router", zap.Error(err))
		return 1
	}

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout, it would cut off long-lived SSE responses
	}

	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Cancel context to close desktop connections with a normal closure
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}

func buildLogger(levelStr string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.DisableStacktrace = true

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelStr)); err == nil {
		zapConfig.Level = zap.NewAtomicLevelAt(level)
	}
	if level == zapcore.DebugLevel {
		zapConfig = zap.NewDevelopmentConfig()
	}

	return zapConfig.Build()
}
