package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  audio:
    sample_rate: 16000
    extra: true
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidatesVADFrameDuration(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  vad:
    frame_duration_ms: 15
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "frame_duration_ms") {
		t.Fatalf("expected frame_duration_ms error, got %v", err)
	}
}

func TestLoadValidatesVADAggressiveness(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  vad:
    aggressiveness: 7
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "aggressiveness") {
		t.Fatalf("expected aggressiveness error, got %v", err)
	}
}

func TestLoadValidatesDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: openai
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadValidatesFailoverOrder(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  failover_order: [anthropic, openai]
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "failover_order") {
		t.Fatalf("expected failover_order error, got %v", err)
	}
}

func TestLoadValidatesAgentName(t *testing.T) {
	path := writeConfig(t, `
agents:
  - name: ""
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "agents: each entry requires a name") {
		t.Fatalf("expected agent name error, got %v", err)
	}
}

func TestLoadValidatesAgentPriority(t *testing.T) {
	path := writeConfig(t, `
agents:
  - name: chat_agent
    priority: 150
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "priority") {
		t.Fatalf("expected priority error, got %v", err)
	}
}

func TestLoadValidatesAgentKind(t *testing.T) {
	path := writeConfig(t, `
agents:
  - name: chat_agent
    kind: invalid_kind
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "kind") {
		t.Fatalf("expected kind error, got %v", err)
	}
}

func TestLoadValidatesDuplicateAgentNames(t *testing.T) {
	path := writeConfig(t, `
agents:
  - name: chat_agent
  - name: chat_agent
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "duplicate agent name") {
		t.Fatalf("expected duplicate agent name error, got %v", err)
	}
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
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
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].Name != "chat_agent" {
		t.Fatalf("unexpected agents: %+v", cfg.Agents)
	}
}

func TestLoadAppliesAudioDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.Audio.SampleRate != 16000 {
		t.Fatalf("expected default sample rate 16000, got %d", cfg.Pipeline.Audio.SampleRate)
	}
	if cfg.Pipeline.VAD.FrameDurationMs != 30 {
		t.Fatalf("expected default frame duration 30, got %d", cfg.Pipeline.VAD.FrameDurationMs)
	}
	if cfg.Pipeline.Conversation.ShortTermCap != 50 {
		t.Fatalf("expected default short term cap 50, got %d", cfg.Pipeline.Conversation.ShortTermCap)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("COPILOT_LLM_ANTHROPIC_API_KEY", "sk-test-override")
	t.Setenv("COPILOT_LOG_LEVEL", "debug")

	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-configured
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-test-override" {
		t.Fatalf("expected api key override, got %q", cfg.LLM.Providers["anthropic"].APIKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected log level override, got %q", cfg.Logging.Level)
	}
}

func TestLoadValidatesLogLevel(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: verbose
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "logging.level") {
		t.Fatalf("expected logging.level error, got %v", err)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	includedPath := filepath.Join(dir, "agents.yaml")
	if err := os.WriteFile(includedPath, []byte(`
agents:
  - name: chat_agent
    priority: 50
`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	mainPath := filepath.Join(dir, "main.yaml")
	if err := os.WriteFile(mainPath, []byte(`
$include: agents.yaml
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].Name != "chat_agent" {
		t.Fatalf("expected included agent, got %+v", cfg.Agents)
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
