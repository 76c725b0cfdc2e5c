package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cabinmind/copilot/internal/adapters"
	"github.com/cabinmind/copilot/internal/agentruntime"
	"github.com/cabinmind/copilot/internal/agentruntime/providers"
	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/internal/config"
	"github.com/cabinmind/copilot/internal/controller"
	"github.com/cabinmind/copilot/internal/mcp"
	"github.com/cabinmind/copilot/internal/memory"
	"github.com/cabinmind/copilot/internal/observability"
	"github.com/cabinmind/copilot/internal/orchestrator"
	"github.com/cabinmind/copilot/internal/pipeline"
	"github.com/cabinmind/copilot/internal/sessions"
	"github.com/cabinmind/copilot/internal/tools"
	"github.com/cabinmind/copilot/pkg/models"
)

// system holds every long-lived collaborator buildSystem wires up, so the
// serve/evaluate/status commands can reach into it without re-deriving
// construction order themselves.
type system struct {
	cfg        *config.Config
	bus        *bus.Bus
	sm         *pipeline.StateMachine
	tracker    *pipeline.MessageTracker
	sessions   *sessions.Manager
	registry   *tools.Registry
	mcpManager *mcp.Manager
	provider   agentruntime.Provider
	runtime    *agentruntime.Runtime
	orch       *orchestrator.Orchestrator
	controller *controller.Controller
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	logger     *observability.Logger

	shutdownTracer func(context.Context) error
}

// buildSystem wires every collaborator in registration order (§4.11):
// bus → pipeline (state machine, tracker) → sessions → tools (local catalog
// plus MCP-bridged tools) → LLM providers → agent runtime → orchestrator →
// adapters registered with the controller in pipeline order.
func buildSystem(cfg *config.Config, logger *slog.Logger) (*system, error) {
	b := bus.New(logger)
	sm := pipeline.NewStateMachine(b, logger)
	tracker := pipeline.NewMessageTracker()

	sessionStore := sessions.NewMemoryStore()
	sessionMgr := sessions.NewManager(sessionStore, b, logger, sessionTTL(cfg))

	vehicleState := tools.NewVehicleState()
	registry := tools.NewRegistry(vehicleState)
	tools.RegisterSampleCatalog(registry)

	mcpMgr := mcp.NewManager(&cfg.MCP, logger)

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build llm provider: %w", err)
	}

	memManager, err := memory.NewManager(&cfg.Pipeline.Memory)
	if err != nil {
		return nil, fmt.Errorf("build memory manager: %w", err)
	}
	conversation := memory.NewConversation(cfg.Pipeline.Conversation, memManager, providerSummarizer{provider: provider})

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "copilot",
		ServiceVersion: version,
		Endpoint:       cfg.Observability.TraceEndpoint,
		SamplingRate:   cfg.Observability.TraceSampling,
		EnableInsecure: cfg.Observability.TraceInsecure,
	})

	obsLogger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	runtime := agentruntime.New(cfg.Agents, provider, registry, logger)
	runtime.SetDispatcher(agentruntime.NewBusDispatcher(b, dispatchTimeout(cfg)))
	runtime.SetConversation(conversation)
	runtime.SetTracer(tracer)

	orch := orchestrator.New(cfg.Agents, sessionMgr, provider, logger)

	metrics := observability.NewMetrics()
	ctrl := controller.New(b, logger)

	newBase := func(name string) adapters.Base {
		return adapters.NewBase(name, b, logger).WithMetrics(metrics).WithTracer(tracer)
	}

	audioCapture := newFileAudioCapture(os.Stdin, cfg.Pipeline.Audio.SampleRate, cfg.Pipeline.Audio.Channels, cfg.Pipeline.Audio.ChunkSize)
	audioAdapter := adapters.NewAudioAdapter(audioCapture, newBase("audio"))

	wakewordAdapter := adapters.NewWakewordAdapter(newEnergyWakewordDetector(0), sm, newBase("wakeword"))
	vadAdapter := adapters.NewVADAdapter(newEnergyVAD(vadFrameSize(cfg), 0), sm, newBase("vad"))

	recognizer := newWhisperRecognizer(
		cfg.LLM.Providers["openai"].APIKey,
		cfg.LLM.Providers["openai"].BaseURL,
		"",
		cfg.Pipeline.Audio.SampleRate,
		cfg.Pipeline.Audio.Channels,
	)
	asrAdapter := adapters.NewASRAdapter(recognizer, sm, tracker, newBase("asr"))

	orchestratorAdapter := adapters.NewOrchestratorAdapter(orch, cfg.Owner, newBase("orchestrator"))

	agentsByName := make(map[string]models.AgentConfig, len(cfg.Agents))
	for _, agentCfg := range cfg.Agents {
		if agentCfg.Enabled {
			agentsByName[agentCfg.Name] = agentCfg
		}
	}
	agentAdapter := adapters.NewAgentAdapter(agentsByName, sessionMgr, runtime, tracker, newBase("agent"))

	speaker := newTTSSpeaker(&cfg.Pipeline.TTS, logger)
	ttsAdapter := adapters.NewTTSAdapter(speaker, tracker, newBase("tts"))

	guiAdapter := adapters.NewGUIAdapter(newConsoleDisplay(os.Stdout), newBase("gui"))

	for _, module := range []adapters.Module{audioAdapter, wakewordAdapter, vadAdapter, asrAdapter, orchestratorAdapter, agentAdapter, ttsAdapter, guiAdapter} {
		if err := ctrl.Register(module); err != nil {
			return nil, err
		}
	}

	return &system{
		cfg:            cfg,
		bus:            b,
		sm:             sm,
		tracker:        tracker,
		sessions:       sessionMgr,
		registry:       registry,
		mcpManager:     mcpMgr,
		provider:       provider,
		runtime:        runtime,
		orch:           orch,
		controller:     ctrl,
		metrics:        metrics,
		tracer:         tracer,
		logger:         obsLogger,
		shutdownTracer: shutdownTracer,
	}, nil
}

// buildProvider assembles the failover chain from cfg.LLM.FailoverOrder,
// falling back to DefaultProvider alone when no order is configured.
func buildProvider(cfg *config.Config, logger *slog.Logger) (agentruntime.Provider, error) {
	order := cfg.LLM.FailoverOrder
	if len(order) == 0 && cfg.LLM.DefaultProvider != "" {
		order = []string{cfg.LLM.DefaultProvider}
	}
	if len(order) == 0 {
		return nil, nil
	}

	built := make([]agentruntime.Provider, 0, len(order))
	for _, name := range order {
		providerCfg, ok := cfg.LLM.Providers[name]
		if !ok {
			continue
		}
		provider, err := buildNamedProvider(name, providerCfg)
		if err != nil {
			logger.Warn("skipping unavailable llm provider", "provider", name, "error", err)
			continue
		}
		built = append(built, provider)
	}
	if len(built) == 0 {
		return nil, nil
	}
	if len(built) == 1 {
		return built[0], nil
	}
	return agentruntime.NewFailoverProvider(built, 0, 0), nil
}

func buildNamedProvider(name string, cfg config.ProviderConfig) (agentruntime.Provider, error) {
	switch name {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
			MaxTokens:    cfg.MaxTokens,
		})
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}

func sessionTTL(cfg *config.Config) time.Duration {
	return 5 * time.Minute
}

func dispatchTimeout(cfg *config.Config) time.Duration {
	return 30 * time.Second
}

func vadFrameSize(cfg *config.Config) int {
	// frame_duration_ms is one of 10/20/30 (validated); PCM16 mono @
	// sample_rate yields frame_duration_ms * sample_rate / 1000 samples,
	// times 2 bytes per sample.
	ms := cfg.Pipeline.VAD.FrameDurationMs
	if ms <= 0 {
		ms = 20
	}
	return cfg.Pipeline.Audio.SampleRate * ms / 1000 * 2
}
