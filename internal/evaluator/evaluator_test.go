package evaluator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/internal/pipeline"
	"github.com/cabinmind/copilot/internal/testharness"
	"github.com/cabinmind/copilot/pkg/models"
)

func TestLoadCasesParsesJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cases.jsonl")
	contents := `{"query":"play some jazz","expected_agent":"music_agent","expected_response_type":"success","category":"music"}
{"query":"what's the weather","expected_agent":"chat_agent","expected_response_type":"success","category":"chat"}
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cases, err := LoadCases(path)
	if err != nil {
		t.Fatalf("LoadCases() error = %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(cases))
	}
	if cases[0].ExpectedAgent != "music_agent" {
		t.Fatalf("unexpected first case: %+v", cases[0])
	}
}

func TestLoadCasesRejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cases.jsonl")
	if err := os.WriteFile(path, []byte("not json\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := LoadCases(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRuleJudgeAcceptsNonEmptyResponse(t *testing.T) {
	ok, err := RuleJudge{}.Judge(context.Background(), "q", "success", "here you go")
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if !ok {
		t.Fatalf("expected non-empty response to pass")
	}
}

func TestRuleJudgeRejectsEmptyResponseUnlessError(t *testing.T) {
	if ok, _ := RuleJudge{}.Judge(context.Background(), "q", "success", ""); ok {
		t.Fatalf("expected empty response to fail a success expectation")
	}
	if ok, _ := RuleJudge{}.Judge(context.Background(), "q", "error", ""); !ok {
		t.Fatalf("expected empty response to pass an error expectation")
	}
}

// stubAgentAdapter completes every dispatch immediately with a canned
// response, standing in for the full adapter chain so the driver can be
// tested without a real orchestrator/runtime/session manager.
func stubAgentAdapter(t *testing.T, b *bus.Bus, tracker *pipeline.MessageTracker, agent, message string) {
	t.Helper()
	b.Subscribe(models.EventASRRecognitionSuccess, bus.LaneFast, func(ctx context.Context, ev models.Event) {
		b.Publish(ctx, models.Event{
			Kind:          models.EventAgentDispatchRequest,
			CorrelationID: ev.CorrelationID,
			AgentDispatch: &models.AgentDispatchPayload{Agent: agent, Query: ev.ASRResult.Text},
		})
		tracker.UpdateResponse(ev.CorrelationID, message, models.TraceStatusSuccess)
	})
}

func TestDriverRunScoresAgentAndQualityMatch(t *testing.T) {
	b := bus.New(nil)
	tracker := pipeline.NewMessageTracker()
	stubAgentAdapter(t, b, tracker, "chat_agent", "it is sunny")

	driver := New(b, tracker, RuleJudge{}, "owner", 3, 5*time.Millisecond, time.Second, nil)
	report := driver.Run(context.Background(), []Case{
		{Query: "what's the weather", ExpectedAgent: "chat_agent", ExpectedResponseType: "success"},
	})

	if report.Total != 1 || report.Passed != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	result := report.Results[0]
	if !result.AgentMatch || !result.QualityMatch || !result.Passed {
		t.Fatalf("expected case to pass, got %+v", result)
	}
}

func TestDriverRunFlagsAgentMismatch(t *testing.T) {
	b := bus.New(nil)
	tracker := pipeline.NewMessageTracker()
	stubAgentAdapter(t, b, tracker, "music_agent", "playing now")

	driver := New(b, tracker, RuleJudge{}, "owner", 3, 5*time.Millisecond, time.Second, nil)
	report := driver.Run(context.Background(), []Case{
		{Query: "play jazz", ExpectedAgent: "chat_agent", ExpectedResponseType: "success"},
	})

	if report.Passed != 0 || report.Failed != 1 {
		t.Fatalf("expected case to fail on agent mismatch, got %+v", report)
	}
}

func TestDriverRunRecordsTimelinePerCase(t *testing.T) {
	b := bus.New(nil)
	tracker := pipeline.NewMessageTracker()
	stubAgentAdapter(t, b, tracker, "chat_agent", "it is sunny")

	driver := New(b, tracker, RuleJudge{}, "owner", 3, 5*time.Millisecond, time.Second, nil)
	report := driver.Run(context.Background(), []Case{
		{Query: "what's the weather", ExpectedAgent: "chat_agent", ExpectedResponseType: "success"},
	})

	result := report.Results[0]
	if result.Timeline == nil {
		t.Fatalf("expected a recorded timeline, got nil")
	}
	if result.Timeline.Summary.TotalEvents < 2 {
		t.Fatalf("expected at least a run_start and run_end event, got %+v", result.Timeline.Summary)
	}
}

func TestDriverRunTimesOutWithoutAnyResponder(t *testing.T) {
	b := bus.New(nil)
	tracker := pipeline.NewMessageTracker()

	driver := New(b, tracker, RuleJudge{}, "owner", 1, 5*time.Millisecond, 30*time.Millisecond, nil)
	report := driver.Run(context.Background(), []Case{
		{Query: "hello", ExpectedAgent: "chat_agent", ExpectedResponseType: "success"},
	})

	result := report.Results[0]
	if result.Error == "" {
		t.Fatalf("expected timeout error, got %+v", result)
	}
	if result.Passed {
		t.Fatalf("expected case to fail on timeout")
	}
}

// TestWriteReportGoldenShape pins the on-disk JSON report layout so a field
// rename or reorder shows up as a diff instead of silently breaking whatever
// reads evaluate's --report output downstream.
func TestWriteReportGoldenShape(t *testing.T) {
	report := &Report{
		Total:  2,
		Passed: 1,
		Failed: 1,
		Results: []CaseResult{
			{
				Case:           Case{Query: "play some jazz", ExpectedAgent: "music_agent", ExpectedResponseType: "success", Category: "music"},
				CorrelationID:  "corr-1",
				SelectedAgent:  "music_agent",
				ActualResponse: "playing now",
				ActualStatus:   "success",
				Rounds:         1,
				AgentMatch:     true,
				QualityMatch:   true,
				Passed:         true,
			},
			{
				Case:           Case{Query: "play jazz", ExpectedAgent: "chat_agent", ExpectedResponseType: "success"},
				CorrelationID:  "corr-2",
				SelectedAgent:  "music_agent",
				ActualResponse: "playing now",
				ActualStatus:   "success",
				Rounds:         1,
				AgentMatch:     false,
				QualityMatch:   true,
				Passed:         false,
			},
		},
	}

	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteReport(path, report); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	testharness.NewGolden(t).Assert(string(data))
}
