package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cabinmind/copilot/internal/mcp"
	"github.com/cabinmind/copilot/internal/memory"
	"github.com/cabinmind/copilot/internal/tts"
	"github.com/cabinmind/copilot/pkg/models"
)

// Config is the top-level assistant configuration (§6).
type Config struct {
	// Owner identifies the single device user every session and dispatch is
	// scoped to (§9 "Identity is out of scope" — no voice-print or
	// channel-identity step exists upstream of the orchestrator).
	Owner     string               `yaml:"owner"`
	Pipeline  PipelineConfig       `yaml:"pipeline"`
	Agents    []models.AgentConfig `yaml:"agents"`
	LLM       LLMConfig            `yaml:"llm"`
	MCP       mcp.Config           `yaml:"mcp"`
	Logging   LoggingConfig        `yaml:"logging"`
	Evaluator EvaluatorConfig      `yaml:"evaluator"`

	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig controls the Prometheus metrics endpoint and the
// OpenTelemetry trace exporter. Empty MetricsAddr disables metrics, since
// `serve` running over stdin audio in a terminal (the only capture path
// this binary ships) has no obvious need for a scrape target until one is
// configured. Empty TraceEndpoint likewise disables trace export: every
// span still gets created against a no-op tracer, so turning this on later
// is a config change, not a code change.
type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`

	TraceEndpoint string  `yaml:"trace_endpoint"`
	TraceSampling float64 `yaml:"trace_sampling"`
	TraceInsecure bool    `yaml:"trace_insecure"`
}

// PipelineConfig configures audio capture, voice activity detection, and the
// memory subsystem that back the coordination pipeline (§4, §6).
type PipelineConfig struct {
	Audio        AudioConfig               `yaml:"audio"`
	VAD          VADConfig                 `yaml:"vad"`
	Memory       memory.Config             `yaml:"memory"`
	Conversation memory.ConversationConfig `yaml:"conversation"`
	TTS          tts.Config                `yaml:"tts"`
}

// AudioConfig configures the capture adapter (§4.1).
type AudioConfig struct {
	SampleRate    int    `yaml:"sample_rate"`
	Channels      int    `yaml:"channels"`
	ChunkSize     int    `yaml:"chunk_size"`
	Format        string `yaml:"format"`
	BufferSeconds int    `yaml:"buffer_seconds"`
}

// VADConfig configures voice activity detection (§4.2).
type VADConfig struct {
	FrameDurationMs     int `yaml:"frame_duration_ms"` // 10, 20, or 30
	Aggressiveness      int `yaml:"aggressiveness"`    // 0-3
	SilenceTimeoutMs    int `yaml:"silence_timeout_ms"`
	PreSpeechBufferMs   int `yaml:"pre_speech_buffer_ms"`
	MinSpeechDurationMs int `yaml:"min_speech_duration_ms"`
}

// LLMConfig configures the agent runtime's provider chain (§4.7). Providers
// are tried in FailoverOrder, falling back on repeated failure.
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider"`
	FailoverOrder   []string                  `yaml:"failover_order"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig configures one named LLM provider binding.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	MaxTokens    int    `yaml:"max_tokens"`
}

// LoggingConfig configures the structured logger every component logs
// through.
type LoggingConfig struct {
	Level  string `yaml:"level"` // debug, info, warn, error
	Format string `yaml:"format"`
}

// EvaluatorConfig configures the golden-case evaluation driver (§4.10).
type EvaluatorConfig struct {
	CasesFile    string        `yaml:"cases_file"`
	ReportFile   string        `yaml:"report_file"`
	MaxRounds    int           `yaml:"max_rounds"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
}

// Load reads, expands $include directives, decodes, defaults, and validates
// a configuration file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Owner) == "" {
		cfg.Owner = "owner"
	}
	applyAudioDefaults(&cfg.Pipeline.Audio)
	applyVADDefaults(&cfg.Pipeline.VAD)
	applyConversationDefaults(&cfg.Pipeline.Conversation)
	applyTTSDefaults(&cfg.Pipeline.TTS)
	applyLLMDefaults(&cfg.LLM)
	applyLoggingDefaults(&cfg.Logging)
	applyEvaluatorDefaults(&cfg.Evaluator)
}

func applyAudioDefaults(cfg *AudioConfig) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 1024
	}
	if cfg.Format == "" {
		cfg.Format = "pcm16"
	}
	if cfg.BufferSeconds == 0 {
		cfg.BufferSeconds = 30
	}
}

func applyVADDefaults(cfg *VADConfig) {
	if cfg.FrameDurationMs == 0 {
		cfg.FrameDurationMs = 30
	}
	if cfg.SilenceTimeoutMs == 0 {
		cfg.SilenceTimeoutMs = 800
	}
	if cfg.PreSpeechBufferMs == 0 {
		cfg.PreSpeechBufferMs = 300
	}
	if cfg.MinSpeechDurationMs == 0 {
		cfg.MinSpeechDurationMs = 250
	}
}

// applyConversationDefaults mirrors memory.NewConversation's own defaulting
// so a loaded Config reflects the values actually in effect before the
// Conversation is constructed (Open Question (c): ShortTermCap defaults to
// 50).
func applyConversationDefaults(cfg *memory.ConversationConfig) {
	if cfg.ShortTermCap <= 0 {
		cfg.ShortTermCap = 50
	}
	if cfg.TriggerCount <= 0 {
		cfg.TriggerCount = 10
	}
	if cfg.MaxHistoryRounds <= 0 {
		cfg.MaxHistoryRounds = cfg.ShortTermCap
	}
	if cfg.LongTermFile == "" {
		cfg.LongTermFile = "%s_long_term.json"
	}
}

func applyTTSDefaults(cfg *tts.Config) {
	cfg.ApplyDefaults()
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "anthropic"
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

func applyEvaluatorDefaults(cfg *EvaluatorConfig) {
	if cfg.ReportFile == "" {
		cfg.ReportFile = "evaluation-report.json"
	}
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = 3
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 10 * time.Second
	}
}

// applyEnvOverrides lets deployment secrets (LLM API keys) come from the
// environment without being written to the config file on disk.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	for name, provider := range cfg.LLM.Providers {
		envKey := "COPILOT_LLM_" + strings.ToUpper(name) + "_API_KEY"
		if value := strings.TrimSpace(os.Getenv(envKey)); value != "" {
			provider.APIKey = value
			cfg.LLM.Providers[name] = provider
		}
	}
	if value := strings.TrimSpace(os.Getenv("COPILOT_LOG_LEVEL")); value != "" {
		cfg.Logging.Level = value
	}
}

// ConfigValidationError reports one or more configuration problems found
// during validation.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	if !validFrameDuration(cfg.Pipeline.VAD.FrameDurationMs) {
		issues = append(issues, "pipeline.vad.frame_duration_ms must be 10, 20, or 30")
	}
	if cfg.Pipeline.VAD.Aggressiveness < 0 || cfg.Pipeline.VAD.Aggressiveness > 3 {
		issues = append(issues, "pipeline.vad.aggressiveness must be between 0 and 3")
	}
	if cfg.Pipeline.VAD.SilenceTimeoutMs < 0 {
		issues = append(issues, "pipeline.vad.silence_timeout_ms must be >= 0")
	}

	names := make(map[string]bool, len(cfg.Agents))
	for _, agent := range cfg.Agents {
		if strings.TrimSpace(agent.Name) == "" {
			issues = append(issues, "agents: each entry requires a name")
			continue
		}
		if names[agent.Name] {
			issues = append(issues, fmt.Sprintf("agents: duplicate agent name %q", agent.Name))
		}
		names[agent.Name] = true
		if agent.Priority < 0 || agent.Priority > 100 {
			issues = append(issues, fmt.Sprintf("agents.%s.priority must be between 0 and 100", agent.Name))
		}
		if !validAgentKind(agent.Kind) {
			issues = append(issues, fmt.Sprintf("agents.%s.kind must be simple, tool_using, session, or planner", agent.Name))
		}
	}

	defaultProvider := strings.TrimSpace(cfg.LLM.DefaultProvider)
	if defaultProvider != "" {
		if _, ok := cfg.LLM.Providers[defaultProvider]; !ok {
			issues = append(issues, fmt.Sprintf("llm.providers missing entry for default_provider %q", cfg.LLM.DefaultProvider))
		}
	}
	for _, name := range cfg.LLM.FailoverOrder {
		if _, ok := cfg.LLM.Providers[name]; !ok {
			issues = append(issues, fmt.Sprintf("llm.failover_order references unconfigured provider %q", name))
		}
	}

	if !validLogLevel(cfg.Logging.Level) {
		issues = append(issues, "logging.level must be debug, info, warn, or error")
	}

	if cfg.Evaluator.MaxRounds < 0 {
		issues = append(issues, "evaluator.max_rounds must be >= 0")
	}

	if mcpIssues := mcpValidationIssues(&cfg.MCP); len(mcpIssues) > 0 {
		issues = append(issues, mcpIssues...)
	}

	if err := tts.ValidateConfig(&cfg.Pipeline.TTS); err != nil {
		issues = append(issues, err.Error())
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

func mcpValidationIssues(cfg *mcp.Config) []string {
	if cfg == nil {
		return nil
	}
	var issues []string
	seen := make(map[string]bool, len(cfg.Servers))
	for _, server := range cfg.Servers {
		if server == nil {
			continue
		}
		if err := server.Validate(); err != nil {
			issues = append(issues, fmt.Sprintf("mcp.servers[%s]: %v", server.ID, err))
		}
		if seen[server.ID] {
			issues = append(issues, fmt.Sprintf("mcp.servers: duplicate id %q", server.ID))
		}
		seen[server.ID] = true
	}
	return issues
}

func validFrameDuration(ms int) bool {
	switch ms {
	case 10, 20, 30:
		return true
	default:
		return false
	}
}

func validAgentKind(kind models.AgentKind) bool {
	switch kind {
	case models.AgentKindSimple, models.AgentKindToolUsing, models.AgentKindSession, models.AgentKindPlanner, "":
		return true
	default:
		return false
	}
}

func validLogLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
