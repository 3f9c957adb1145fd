package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shipperhq/shopware-shipperhq/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "shqrates",
	Short:   "ShipperHQ rate cache - session-scoped shipping rate caching and matching",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Drop every cached rate table of a shopper session",
	Long: "Drop every cached rate table of a shopper session in the shared redis storage.\n" +
		"With the in-memory backend use DELETE /v1/sessions/{sessionID}/rates on the server instead.",
	RunE: runClearCache,
}

func init() {
	clearCacheCmd.Flags().String("session", "", "session id whose rates are cleared")
	_ = clearCacheCmd.MarkFlagRequired("session")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(clearCacheCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Initialize telemetry
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.Background())
	}

	app, err := initApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.NATSEnabled {
		if err := app.subscribeEvents(ctx, cfg); err != nil {
			return err
		}
	}

	logger.Info("Starting ShipperHQ rate service",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.String("storage", cfg.StorageBackend),
		zap.String("catalog", cfg.CatalogBackend),
		zap.Duration("ttl", app.cache.TTL()),
	)

	// Start HTTP server
	srv := server.New(server.Config{Port: cfg.Port}, server.Deps{
		Cache:      app.cache,
		Methods:    app.methods,
		Dispatcher: app.dispatcher,
		Metrics:    app.metrics,
	}, logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runClearCache(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sessionID, _ := cmd.Flags().GetString("session")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	app, err := initClearApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.cache.ClearCache(ctx, sessionID); err != nil {
		return fmt.Errorf("clearing rate cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared ShipperHQ rate cache for session %s\n", sessionID)
	return nil
}
