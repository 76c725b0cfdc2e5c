package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cabinmind/copilot/internal/config"
	"github.com/cabinmind/copilot/internal/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that runs the coordination
// pipeline until a shutdown signal arrives.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the copilot coordination pipeline",
		Long: `Run the copilot coordination pipeline: audio capture, wakeword/VAD,
speech recognition, orchestration, agent dispatch, and text-to-speech, all
wired onto a single event bus.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting copilot", "version", version, "commit", commit, "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sys, err := buildSystem(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build system: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sys.shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown reported an error", "error", err)
		}
	}()

	if err := sys.mcpManager.Start(ctx); err != nil {
		sys.logger.Warn(ctx, "mcp manager start reported an error", "error", err)
	}
	registered := mcp.RegisterTools(sys.registry, sys.mcpManager)
	sys.logger.Info(ctx, "mcp tools registered", "count", len(registered))

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer metricsServer.Close()
		logger.Info("metrics endpoint listening", "addr", addr)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sys.controller.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	if err := sys.controller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	sys.logger.Info(ctx, "copilot pipeline running", "owner", cfg.Owner, "agents", len(cfg.Agents))

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping pipeline")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := sys.controller.Stop(shutdownCtx); err != nil {
		logger.Error("pipeline stop reported an error", "error", err)
	}
	if err := sys.controller.Cleanup(shutdownCtx); err != nil {
		logger.Error("pipeline cleanup reported an error", "error", err)
	}
	if err := sys.mcpManager.Stop(); err != nil {
		logger.Error("mcp manager stop reported an error", "error", err)
	}
	sys.bus.Shutdown()

	logger.Info("copilot stopped")
	return nil
}
