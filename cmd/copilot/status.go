package main

import (
	"fmt"
	"log/slog"

	"github.com/cabinmind/copilot/internal/config"
	"github.com/spf13/cobra"
)

// buildStatusCmd creates the "status" command: a read-only summary of the
// configured agents, MCP servers, and memory backend, without starting the
// pipeline.
func buildStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the configured pipeline without starting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runStatus(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(out, "Config load failed: %v\n", err)
		return err
	}

	fmt.Fprintf(out, "Config: %s\n", configPath)
	fmt.Fprintf(out, "Owner: %s\n", cfg.Owner)

	fmt.Fprintln(out, "Agents:")
	if len(cfg.Agents) == 0 {
		fmt.Fprintln(out, "  none configured")
	}
	for _, agent := range cfg.Agents {
		state := "enabled"
		if !agent.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(out, "  - %s (%s, kind=%s, priority=%d)\n", agent.Name, state, agent.Kind, agent.Priority)
	}

	fmt.Fprintln(out, "LLM providers:")
	if len(cfg.LLM.Providers) == 0 {
		fmt.Fprintln(out, "  none configured")
	}
	for name := range cfg.LLM.Providers {
		fmt.Fprintf(out, "  - %s\n", name)
	}
	fmt.Fprintf(out, "  default: %s, failover: %v\n", cfg.LLM.DefaultProvider, cfg.LLM.FailoverOrder)

	fmt.Fprintln(out, "MCP servers:")
	if !cfg.MCP.Enabled || len(cfg.MCP.Servers) == 0 {
		fmt.Fprintln(out, "  none configured")
	}
	for _, server := range cfg.MCP.Servers {
		fmt.Fprintf(out, "  - %s (auto_start=%v)\n", server.ID, server.AutoStart)
	}

	fmt.Fprintln(out, "Memory:")
	fmt.Fprintf(out, "  vector search enabled: %v (backend=%s)\n", cfg.Pipeline.Memory.Enabled, cfg.Pipeline.Memory.Backend)
	fmt.Fprintf(out, "  conversation short_term_cap: %d\n", cfg.Pipeline.Conversation.ShortTermCap)

	fmt.Fprintln(out, "TTS:")
	fmt.Fprintf(out, "  enabled: %v, provider: %s\n", cfg.Pipeline.TTS.Enabled, cfg.Pipeline.TTS.Provider)

	fmt.Fprintln(out, "Observability:")
	if cfg.Observability.MetricsAddr == "" {
		fmt.Fprintln(out, "  metrics endpoint disabled")
	} else {
		fmt.Fprintf(out, "  metrics endpoint: %s/metrics\n", cfg.Observability.MetricsAddr)
	}

	slog.Debug("status command completed")
	return nil
}
