package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/config"
	"github.com/ekaya-inc/datagenie/pkg/logging"
	"github.com/ekaya-inc/datagenie/pkg/metrics"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

var (
	configPath string
	endpointID string
)

var rootCmd = &cobra.Command{
	Use:   "datagenie",
	Short: "Natural-language SQL over tenant databases",
	Long: `datagenie mirrors tenant database schemas and turns questions into
read-only SQL that is dry-run against the tenant's own planner.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply engine store migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		db, err := openDatabase(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		db.Close()
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one schema sync pass for an endpoint and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(endpointID)
		if err != nil {
			return fmt.Errorf("--endpoint must be a UUID: %w", err)
		}

		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.sync.Refresh(cmd.Context(), id)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file")
	refreshCmd.Flags().StringVar(&endpointID, "endpoint", "", "endpoint ID to refresh")
	_ = refreshCmd.MarkFlagRequired("endpoint")

	rootCmd.AddCommand(serveCmd, migrateCmd, refreshCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads .env, the configuration and the logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath, Version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	metrics.BuildInfo.WithLabelValues(cfg.Version).Set(1)

	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("schema_cache", cfg.Cache.Backend),
		zap.Bool("history", cfg.History.Enabled))

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Startup failed", zap.String("error", logging.SanitizeError(err)))
		return err
	}
	defer a.Close()

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting datagenie", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
