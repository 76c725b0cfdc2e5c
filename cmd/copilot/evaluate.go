package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cabinmind/copilot/internal/config"
	"github.com/cabinmind/copilot/internal/evaluator"
	"github.com/spf13/cobra"
)

// buildEvaluateCmd creates the "evaluate" command: runs the golden-case
// suite straight against the bus (bypassing audio/wakeword/VAD/ASR, as if
// every case had already been recognized) and writes a JSON report.
func buildEvaluateCmd() *cobra.Command {
	var (
		configPath string
		useLLM     bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the golden-case evaluation suite",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runEvaluate(cmd, configPath, useLLM)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&useLLM, "llm-judge", false, "Score responses with the configured LLM provider instead of the rule-based judge")

	return cmd
}

func runEvaluate(cmd *cobra.Command, configPath string, useLLM bool) error {
	out := cmd.OutOrStdout()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Evaluator.CasesFile == "" {
		return fmt.Errorf("evaluator.cases_file is not configured")
	}

	sys, err := buildSystem(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build system: %w", err)
	}

	ctx := cmd.Context()
	if err := sys.controller.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	if err := sys.controller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	defer func() {
		_ = sys.controller.Stop(ctx)
		_ = sys.controller.Cleanup(ctx)
		sys.bus.Shutdown()
	}()

	cases, err := evaluator.LoadCases(cfg.Evaluator.CasesFile)
	if err != nil {
		return fmt.Errorf("failed to load cases: %w", err)
	}

	var judge evaluator.Judge = evaluator.RuleJudge{}
	if useLLM {
		judge = evaluator.LLMJudge{Provider: sys.provider}
	}

	driver := evaluator.New(sys.bus, sys.tracker, judge, cfg.Owner,
		cfg.Evaluator.MaxRounds, cfg.Evaluator.PollInterval, cfg.Evaluator.PollTimeout, logger)

	report := driver.Run(ctx, cases)

	if err := evaluator.WriteReport(cfg.Evaluator.ReportFile, report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	fmt.Fprintf(out, "Evaluated %d cases: %d passed, %d failed\n", report.Total, report.Passed, report.Failed)
	fmt.Fprintf(out, "Report written to %s\n", cfg.Evaluator.ReportFile)
	return nil
}
