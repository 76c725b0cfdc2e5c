// Package evaluator implements the golden-case evaluation driver (C10): it
// batch-feeds synthetic utterances straight into the bus, waits for each to
// settle via the message tracker, and scores the outcome (§4.10).
package evaluator

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cabinmind/copilot/internal/bus"
	"github.com/cabinmind/copilot/internal/observability"
	"github.com/cabinmind/copilot/internal/pipeline"
	"github.com/cabinmind/copilot/pkg/models"
)

// Case is one line of the golden-case JSONL file.
type Case struct {
	Query                string   `json:"query"`
	ExpectedAgent        string   `json:"expected_agent"`
	ExpectedResponseType string   `json:"expected_response_type"` // "success", "waiting_input", "error"
	Category             string   `json:"category"`
	FollowUps            []string `json:"follow_ups,omitempty"`
}

// Judge scores whether a response satisfies a case's quality bar. LLMJudge
// wraps an agentruntime.Provider; RuleJudge is the dependency-free fallback
// (§4.10 "LLM judge vs fallback rule").
type Judge interface {
	Judge(ctx context.Context, query, expectedResponseType, response string) (bool, error)
}

// RuleJudge accepts any non-empty response as adequate, except that an
// "error" expectation requires the response stay empty (no TTS is spoken on
// agent_error/recognition_failed/session_conflict in evaluation mode, per
// §4.10 "TTS is skipped in evaluation mode").
type RuleJudge struct{}

func (RuleJudge) Judge(_ context.Context, _, expectedResponseType, response string) (bool, error) {
	if expectedResponseType == "error" {
		return true, nil
	}
	return strings.TrimSpace(response) != "", nil
}

// CaseResult is one case's outcome.
type CaseResult struct {
	Case           Case                    `json:"case"`
	CorrelationID  string                  `json:"correlation_id"`
	SelectedAgent  string                  `json:"selected_agent"`
	ActualResponse string                  `json:"actual_response"`
	ActualStatus   string                  `json:"actual_status"`
	Rounds         int                     `json:"rounds"`
	AgentMatch     bool                    `json:"agent_match"`
	QualityMatch   bool                    `json:"quality_match"`
	Passed         bool                    `json:"passed"`
	Error          string                  `json:"error,omitempty"`
	Timeline       *observability.Timeline `json:"timeline,omitempty"`
}

// Report is the evaluator's JSON output (§4.10 "Emit JSON report").
type Report struct {
	Total   int          `json:"total"`
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Results []CaseResult `json:"results"`
}

// Driver runs golden cases against a live bus/tracker pair. It never touches
// the audio/wakeword/VAD/ASR adapters: every case is injected as if ASR had
// already recognized it (§4.10).
type Driver struct {
	bus     *bus.Bus
	tracker *pipeline.MessageTracker
	judge   Judge
	userID  string

	maxRounds    int
	pollInterval time.Duration
	pollTimeout  time.Duration

	logger   *slog.Logger
	events   *observability.MemoryEventStore
	recorder *observability.EventRecorder
}

// New creates a Driver. judge may be nil, in which case RuleJudge is used.
func New(b *bus.Bus, tracker *pipeline.MessageTracker, judge Judge, userID string, maxRounds int, pollInterval, pollTimeout time.Duration, logger *slog.Logger) *Driver {
	if judge == nil {
		judge = RuleJudge{}
	}
	if maxRounds <= 0 {
		maxRounds = 3
	}
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	events := observability.NewMemoryEventStore(0)
	return &Driver{
		bus:          b,
		tracker:      tracker,
		judge:        judge,
		userID:       userID,
		maxRounds:    maxRounds,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		logger:       logger.With("component", "evaluator"),
		events:       events,
		recorder:     observability.NewEventRecorder(events, nil),
	}
}

// LoadCases reads a JSONL file of Case records (§4.10).
func LoadCases(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("evaluator: open cases file: %w", err)
	}
	defer f.Close()

	var cases []Case
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var c Case
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("evaluator: cases file line %d: %w", line, err)
		}
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("evaluator: read cases file: %w", err)
	}
	return cases, nil
}

// Run executes every case in sequence and returns the aggregate report.
// Cases run one at a time: the pipeline's single-in-flight-per-user policy
// (§4, ASR/agent adapters) means concurrent injection for one user would
// just serialize anyway, and sequential execution keeps each case's trace
// unambiguous.
func (d *Driver) Run(ctx context.Context, cases []Case) *Report {
	report := &Report{Total: len(cases)}
	for _, c := range cases {
		result := d.runCase(ctx, c)
		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, result)
	}
	return report
}

// runCase injects one case's query as a synthetic asr_recognition_success,
// polls the tracker for a terminal outcome, and drives mock follow-ups on
// waiting_input (§4.10).
func (d *Driver) runCase(ctx context.Context, c Case) (result CaseResult) {
	result = CaseResult{Case: c}

	runID := d.tracker.CreateMessageID()
	ctx = observability.AddRunID(ctx, runID)
	start := time.Now()
	_ = d.recorder.RecordRunStart(ctx, runID, map[string]interface{}{"query": c.Query, "category": c.Category})

	var runErr error
	defer func() {
		_ = d.recorder.RecordRunEnd(ctx, time.Since(start), runErr)
		if events, err := d.events.GetByRunID(runID); err == nil && len(events) > 0 {
			result.Timeline = observability.BuildTimeline(events)
		}
	}()

	selectedAgent := make(chan string, 1)
	unsubscribe := d.bus.Subscribe(models.EventAgentDispatchRequest, bus.LaneFast, func(_ context.Context, ev models.Event) {
		if ev.AgentDispatch == nil {
			return
		}
		select {
		case selectedAgent <- ev.AgentDispatch.Agent:
		default:
		}
	})
	defer unsubscribe()

	query := c.Query
	followUps := append([]string(nil), c.FollowUps...)

	for round := 1; round <= d.maxRounds; round++ {
		result.Rounds = round
		correlationID := d.publishUtterance(ctx, query)
		result.CorrelationID = correlationID

		trace, waiting, err := d.awaitTrace(ctx, correlationID)
		if err != nil {
			result.Error = err.Error()
			break
		}

		select {
		case agent := <-selectedAgent:
			result.SelectedAgent = agent
		default:
		}

		result.ActualResponse = trace.Response
		result.ActualStatus = string(trace.Status)

		if !waiting {
			break
		}
		if len(followUps) == 0 {
			result.Error = "waiting_input with no mock follow-up available"
			break
		}
		query, followUps = followUps[0], followUps[1:]
	}

	result.AgentMatch = c.ExpectedAgent == "" || c.ExpectedAgent == result.SelectedAgent
	quality, err := d.judge.Judge(ctx, c.Query, c.ExpectedResponseType, result.ActualResponse)
	if err != nil && result.Error == "" {
		result.Error = err.Error()
	}
	result.QualityMatch = quality
	result.Passed = result.Error == "" && result.AgentMatch && result.QualityMatch
	if result.Error != "" {
		runErr = fmt.Errorf("%s", result.Error)
	}
	return result
}

// publishUtterance mirrors ASRAdapter.HandleEvent's success path (§4.10
// "bypassing capture"): allocate a correlation id, stamp the query, and
// publish asr_recognition_success directly.
func (d *Driver) publishUtterance(ctx context.Context, query string) string {
	correlationID := d.tracker.CreateMessageID()
	d.tracker.UpdateQuery(correlationID, query)
	d.tracker.AddTrace(correlationID, "asr", "", query)
	d.bus.Publish(ctx, models.Event{
		Kind:          models.EventASRRecognitionSuccess,
		Source:        "evaluator",
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
		ASRResult:     &models.ASRResultPayload{Text: query, Confidence: 1},
	})
	return correlationID
}

// awaitTrace polls the tracker until the trace reaches a terminal status or
// is recognizably waiting_input, or pollTimeout elapses. Terminal detection
// mirrors adapters.AgentAdapter.HandleEvent: a waiting_input response maps
// to TraceStatusPending with trace.Response already set to the follow-up
// prompt, which is otherwise indistinguishable from "not processed yet"
// (empty Response) — so pending-with-a-response is read as waiting_input.
func (d *Driver) awaitTrace(ctx context.Context, correlationID string) (models.MessageTrace, bool, error) {
	deadline := time.Now().Add(d.pollTimeout)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		trace, ok := d.tracker.GetTrace(correlationID)
		if ok {
			switch trace.Status {
			case models.TraceStatusSuccess, models.TraceStatusError, models.TraceStatusAborted:
				return trace, false, nil
			case models.TraceStatusPending:
				if strings.TrimSpace(trace.Response) != "" {
					return trace, true, nil
				}
			}
		}
		if time.Now().After(deadline) {
			return trace, false, fmt.Errorf("evaluator: correlation %q timed out waiting for a response", correlationID)
		}
		select {
		case <-ctx.Done():
			return trace, false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WriteReport writes report as indented JSON to path (§4.10 "Emit JSON
// report").
func WriteReport(path string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("evaluator: marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("evaluator: write report: %w", err)
	}
	return nil
}
