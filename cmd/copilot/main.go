// Package main provides the CLI entry point for copilot, an in-vehicle
// voice-assistant coordination plane.
//
// copilot wires together audio capture, wakeword/voice-activity detection,
// speech recognition, an orchestrator that picks an agent, an agent
// runtime backed by Anthropic/OpenAI, and text-to-speech, stitched together
// by a typed event bus.
//
// # Basic usage
//
//	copilot serve --config copilot.yaml
//	copilot status --config copilot.yaml
//	copilot evaluate --config copilot.yaml
//
// # Environment variables
//
//   - COPILOT_CONFIG: path to the configuration file (default: copilot.yaml)
//   - COPILOT_LLM_<PROVIDER>_API_KEY: overrides llm.providers.<provider>.api_key
//   - COPILOT_LOG_LEVEL: overrides logging.level
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with every subcommand attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "copilot",
		Short: "copilot - in-vehicle voice-assistant coordination plane",
		Long: `copilot coordinates audio capture, wakeword/VAD, speech recognition,
agent orchestration, and text-to-speech over a typed event bus.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())
	rootCmd.AddCommand(buildStatusCmd())
	rootCmd.AddCommand(buildEvaluateCmd())

	return rootCmd
}

// resolveConfigPath falls back to the COPILOT_CONFIG environment variable,
// then to the conventional copilot.yaml in the working directory.
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("COPILOT_CONFIG"); env != "" {
		return env
	}
	return "copilot.yaml"
}
