package pipeline

import (
	"testing"

	"github.com/cabinmind/copilot/pkg/models"
)

func TestMessageTrackerTraceOrder(t *testing.T) {
	tr := NewMessageTracker()
	id := tr.CreateMessageID()

	tr.UpdateQuery(id, "导航到北京故宫")
	tr.AddTrace(id, "audio", "", "")
	tr.AddTrace(id, "wake", "", "")
	tr.AddTrace(id, "vad_start", "", "")
	tr.AddTrace(id, "vad_end", "", "")
	tr.AddTrace(id, "asr_start", "", "")
	tr.AddTrace(id, "asr_success", "", "导航到北京故宫")
	tr.AddTrace(id, "orchestrator_decision", "", "navigation_agent")
	tr.AddTrace(id, "agent_dispatch", "", "")
	tr.UpdateResponse(id, "正在规划路线", models.TraceStatusSuccess)

	trace, ok := tr.GetTrace(id)
	if !ok {
		t.Fatalf("expected trace for %s to exist", id)
	}
	if trace.Query != "导航到北京故宫" {
		t.Errorf("unexpected query: %s", trace.Query)
	}
	if trace.Status != models.TraceStatusSuccess {
		t.Errorf("expected success status, got %s", trace.Status)
	}

	wantStages := []string{"audio", "wake", "vad_start", "vad_end", "asr_start", "asr_success", "orchestrator_decision", "agent_dispatch"}
	if len(trace.Entries) != len(wantStages) {
		t.Fatalf("expected %d entries, got %d", len(wantStages), len(trace.Entries))
	}
	for i, stage := range wantStages {
		if trace.Entries[i].Stage != stage {
			t.Errorf("entry %d: expected stage %s, got %s", i, stage, trace.Entries[i].Stage)
		}
	}
}

func TestGetTraceUnknownID(t *testing.T) {
	tr := NewMessageTracker()
	if _, ok := tr.GetTrace("missing"); ok {
		t.Error("expected ok=false for unknown id")
	}
}

func TestAbortMarksPendingTraces(t *testing.T) {
	tr := NewMessageTracker()
	id := tr.CreateMessageID()
	tr.Abort()
	trace, _ := tr.GetTrace(id)
	if trace.Status != models.TraceStatusAborted {
		t.Errorf("expected aborted status, got %s", trace.Status)
	}
}
