package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/overlaykit/relay/internal/config"
	"github.com/overlaykit/relay/internal/desktopclient"
)

var (
	cfgFile string
	verbose bool
	logger  *zap.Logger
	cfg     *config.DesktopConfig
)

func setupLogger(verbose bool, level string) (*zap.Logger, error) {
	var zapConfig zap.Config
	if verbose {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.DisableStacktrace = true
	}

	if level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err == nil {
			zapConfig.Level = zap.NewAtomicLevelAt(l)
		}
	}

	return zapConfig.Build()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "relay-desktop",
		Short: "Desktop companion for the relay event pipeline",
		Long: `Connects to the relay server's streamer-events socket, answers
heartbeats, and surfaces punishment commands to the local machine.
Reconnects automatically with bounded backoff after unexpected closes.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadDesktopConfig(cfgFile)
			if err != nil {
				return err
			}
			logger, err = setupLogger(verbose, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompanion()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runCompanion() error {
	defer logger.Sync()

	ctrl := desktopclient.New(cfg.Endpoint, cfg.Token, cfg.Version, logger)

	if err := ctrl.Connect(context.Background()); err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.Endpoint, err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-quit:
			logger.Info("shutting down")
			ctrl.Disconnect()
			return nil

		case ev := <-ctrl.Events():
			switch ev.Kind {
			case desktopclient.EventConnected:
				logger.Info("connected to relay server")
			case desktopclient.EventDisconnected:
				logger.Warn("disconnected from relay server")
			case desktopclient.EventPunishment:
				logger.Info("punishment received",
					zap.String("id", ev.Punishment.ID),
					zap.String("punishment", ev.Punishment.Type),
					zap.Int64("durationMs", ev.Punishment.DurationMs),
					zap.String("triggeredBy", ev.Punishment.TriggeredBy),
					zap.Int64("timestamp", ev.Timestamp),
				)
				// Input blocking itself is delegated to the embedding shell.
			}
		}
	}
}
