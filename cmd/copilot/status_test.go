package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

const minimalStatusConfig = `
owner: driver
pipeline:
  audio:
    sample_rate: 16000
    channels: 1
  vad:
    frame_duration_ms: 30
    aggressiveness: 2
agents:
  - name: chat_agent
    priority: 50
    kind: simple
    enabled: true
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`

func writeCopilotConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "copilot.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunStatusReportsConfiguredAgentsAndOwner(t *testing.T) {
	path := writeCopilotConfig(t, minimalStatusConfig)

	cmd := &cobra.Command{}
	var out strings.Builder
	cmd.SetOut(&out)

	if err := runStatus(cmd, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "Owner: driver") {
		t.Errorf("expected owner in output, got %q", got)
	}
	if !strings.Contains(got, "chat_agent") {
		t.Errorf("expected configured agent in output, got %q", got)
	}
	if !strings.Contains(got, "metrics endpoint disabled") {
		t.Errorf("expected metrics endpoint to report disabled by default, got %q", got)
	}
}

func TestRunStatusReportsMetricsAddrWhenConfigured(t *testing.T) {
	path := writeCopilotConfig(t, minimalStatusConfig+"\nobservability:\n  metrics_addr: \":9090\"\n")

	cmd := &cobra.Command{}
	var out strings.Builder
	cmd.SetOut(&out)

	if err := runStatus(cmd, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, ":9090/metrics") {
		t.Errorf("expected configured metrics address in output, got %q", got)
	}
}

func TestRunStatusReturnsErrorOnMissingConfig(t *testing.T) {
	cmd := &cobra.Command{}
	var out strings.Builder
	cmd.SetOut(&out)

	if err := runStatus(cmd, filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}
