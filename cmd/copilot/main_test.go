package main

import (
	"os"
	"testing"
)

func TestResolveConfigPathPrefersExplicitFlag(t *testing.T) {
	if got := resolveConfigPath("explicit.yaml"); got != "explicit.yaml" {
		t.Errorf("expected explicit path to win, got %q", got)
	}
}

func TestResolveConfigPathFallsBackToEnv(t *testing.T) {
	t.Setenv("COPILOT_CONFIG", "from-env.yaml")
	if got := resolveConfigPath(""); got != "from-env.yaml" {
		t.Errorf("expected env var fallback, got %q", got)
	}
}

func TestResolveConfigPathFallsBackToConventionalName(t *testing.T) {
	os.Unsetenv("COPILOT_CONFIG")
	if got := resolveConfigPath(""); got != "copilot.yaml" {
		t.Errorf("expected conventional default, got %q", got)
	}
}

func TestBuildRootCmdRegistersAllSubcommands(t *testing.T) {
	root := buildRootCmd()

	want := map[string]bool{"serve": false, "status": false, "evaluate": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %q subcommand to be registered", name)
		}
	}
}
