package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/cabinmind/copilot/internal/config"
)

func TestVadFrameSizeComputesBytesFromFrameDuration(t *testing.T) {
	cfg := &config.Config{}
	cfg.Pipeline.Audio.SampleRate = 16000
	cfg.Pipeline.VAD.FrameDurationMs = 20

	// 20ms @ 16kHz mono PCM16: 16000 * 20 / 1000 samples * 2 bytes/sample.
	if got, want := vadFrameSize(cfg), 640; got != want {
		t.Errorf("vadFrameSize() = %d, want %d", got, want)
	}
}

func TestVadFrameSizeDefaultsTo20msWhenUnset(t *testing.T) {
	cfg := &config.Config{}
	cfg.Pipeline.Audio.SampleRate = 16000

	if got, want := vadFrameSize(cfg), 640; got != want {
		t.Errorf("vadFrameSize() = %d, want %d", got, want)
	}
}

func TestBuildSystemWiresEveryEnabledAgentIntoTheAdapter(t *testing.T) {
	cfg := &config.Config{
		Owner: "driver",
	}
	cfg.Pipeline.Audio.SampleRate = 16000
	cfg.Pipeline.Audio.Channels = 1
	cfg.Pipeline.Audio.ChunkSize = 1024
	cfg.Pipeline.VAD.FrameDurationMs = 20
	cfg.Pipeline.Conversation.ShortTermCap = 50
	cfg.Pipeline.Conversation.TriggerCount = 10
	cfg.Pipeline.Conversation.MaxHistoryRounds = 50

	logger := slog.Default()
	sys, err := buildSystem(cfg, logger)
	if err != nil {
		t.Fatalf("buildSystem() error = %v", err)
	}

	if sys.runtime == nil {
		t.Error("expected a non-nil agent runtime")
	}
	if sys.metrics == nil {
		t.Error("expected a non-nil metrics collector")
	}
	if sys.controller == nil {
		t.Error("expected a non-nil controller")
	}
	if sys.tracer == nil {
		t.Error("expected a non-nil tracer")
	}
	if sys.logger == nil {
		t.Error("expected a non-nil observability logger")
	}
	if sys.shutdownTracer == nil {
		t.Error("expected a non-nil tracer shutdown func")
	} else if err := sys.shutdownTracer(context.Background()); err != nil {
		t.Errorf("shutdownTracer() error = %v", err)
	}
}
