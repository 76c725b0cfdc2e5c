package agentruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cabinmind/copilot/internal/observability"
	"github.com/cabinmind/copilot/pkg/models"
)

// planTask is one node of the planner's DAG (§4.7.1).
type planTask struct {
	TaskID      string   `json:"task_id"`
	Description string   `json:"description"`
	Agent       string   `json:"agent"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

type planResult struct {
	Tasks []planTask `json:"tasks"`
}

// taskStatus is a DAG node's terminal/non-terminal state during execution.
type taskStatus string

const (
	taskPending taskStatus = "pending"
	taskSuccess taskStatus = "success"
	taskFailed  taskStatus = "failed"
	taskSkipped taskStatus = "skipped"
)

// newPlannerHandler builds the planner meta-agent (§4.7, §4.7.1): it asks
// the LLM for an ordered task plan over the other configured agents,
// executes the DAG with a worker per ready task, skips the transitive
// dependents of any failed task without invoking them, and summarizes the
// outcome with one more LLM call.
func (r *Runtime) newPlannerHandler(cfg models.AgentConfig) handler {
	return func(ctx context.Context, session *models.AgentSession, query string, parameters map[string]any) (models.AgentResponse, error) {
		if r.provider == nil {
			return models.AgentResponse{Status: models.ResponseError, Message: "planner agent requires an llm provider"}, nil
		}

		correlationID, _ := parameters["_correlation_id"].(string)
		userID, _ := parameters["_user_id"].(string)

		tasks, err := r.buildPlan(ctx, cfg, query)
		if err != nil {
			return models.AgentResponse{Status: models.ResponseError, Message: err.Error()}, nil
		}
		if len(tasks) == 0 {
			return models.AgentResponse{Status: models.ResponseError, Message: "planner produced an empty plan"}, nil
		}

		if r.dispatcher == nil {
			return models.AgentResponse{Status: models.ResponseError, Message: "planner has no dispatcher wired"}, nil
		}

		results := r.executePlan(ctx, tasks, correlationID, userID)

		summary, err := r.summarizePlan(ctx, cfg.Name, query, tasks, results)
		if err != nil {
			summary = fallbackSummary(tasks, results)
		}

		data := make(map[string]any, len(results))
		for id, outcome := range results {
			data[id] = map[string]any{"status": string(outcome.status), "message": outcome.response.Message}
		}

		return models.AgentResponse{
			Status:  models.ResponseSuccess,
			Message: summary,
			Data:    data,
		}, nil
	}
}

func (r *Runtime) buildPlan(ctx context.Context, cfg models.AgentConfig, query string) ([]planTask, error) {
	var b strings.Builder
	b.WriteString("Agents available to delegate tasks to:\n")
	for _, a := range r.agents {
		if a.Config.Name == cfg.Name || !a.Config.Enabled {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", a.Config.Name, a.Config.Description)
	}
	fmt.Fprintf(&b, "\nUser request: %q\n", query)
	b.WriteString("Break this into an ordered list of tasks, each assigned to one agent above. " +
		"A task may depend on the output of earlier tasks by task_id. Respond with JSON only: " +
		`{"tasks": [{"task_id": "t1", "description": "...", "agent": "...", "depends_on": []}]}.`)

	resp, err := r.doComplete(ctx, cfg.Name, CompletionRequest{
		System:   fmt.Sprintf("You are %s, a planning agent. %s", cfg.Name, cfg.Description),
		Messages: []CompletionMessage{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		return nil, err
	}

	var result planResult
	if err := json.Unmarshal([]byte(resp.Content), &result); err != nil {
		return nil, fmt.Errorf("agentruntime: planner returned malformed plan: %w", err)
	}
	return result.Tasks, nil
}

type taskOutcome struct {
	status   taskStatus
	response models.AgentResponse
}

// executePlan runs tasks.dag with a worker per ready task: a task becomes
// eligible once every dependency has a terminal status; a failed or skipped
// dependency marks the task skipped without invocation, and that skip
// propagates transitively (§4.7.1, testable property 8).
func (r *Runtime) executePlan(ctx context.Context, tasks []planTask, correlationID, userID string) map[string]taskOutcome {
	byID := make(map[string]planTask, len(tasks))
	for _, t := range tasks {
		byID[t.TaskID] = t
	}

	var mu sync.Mutex
	results := make(map[string]taskOutcome, len(tasks))
	done := make(chan struct{}, len(tasks))
	dispatched := make(map[string]bool, len(tasks))

	var tryDispatch func()
	var wg sync.WaitGroup

	tryDispatch = func() {
		mu.Lock()
		defer mu.Unlock()
		for _, t := range tasks {
			if dispatched[t.TaskID] {
				continue
			}
			ready := true
			blocked := false
			for _, dep := range t.DependsOn {
				outcome, ok := results[dep]
				if !ok {
					ready = false
					break
				}
				if outcome.status != taskSuccess {
					blocked = true
				}
			}
			if !ready {
				continue
			}
			dispatched[t.TaskID] = true

			if blocked {
				results[t.TaskID] = taskOutcome{status: taskSkipped, response: models.AgentResponse{Message: "skipped: a dependency did not succeed"}}
				done <- struct{}{}
				continue
			}

			wg.Add(1)
			go func(task planTask) {
				defer wg.Done()
				observability.EmitRunAttempt(&observability.RunAttemptEvent{
					CorrelationID: correlationID,
					TaskID:        task.TaskID,
					Agent:         task.Agent,
				})
				resp, err := r.dispatcher.Dispatch(ctx, correlationID, userID, task.Agent, task.Description, task.TaskID)
				status := taskSuccess
				if err != nil {
					resp = models.AgentResponse{Message: err.Error()}
					status = taskFailed
				} else if resp.Status == models.ResponseError {
					status = taskFailed
				}

				mu.Lock()
				results[task.TaskID] = taskOutcome{status: status, response: resp}
				mu.Unlock()
				done <- struct{}{}
			}(t)
		}
	}

	tryDispatch()
	for completed := 0; completed < len(tasks); completed++ {
		<-done
		tryDispatch()
	}
	wg.Wait()
	return results
}

func (r *Runtime) summarizePlan(ctx context.Context, agentName, query string, tasks []planTask, results map[string]taskOutcome) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Original request: %q\n\nTask outcomes:\n", query)
	for _, t := range tasks {
		outcome := results[t.TaskID]
		fmt.Fprintf(&b, "- %s (%s): %s — %s\n", t.TaskID, t.Agent, outcome.status, outcome.response.Message)
	}
	b.WriteString("\nWrite one concise reply to the user summarizing what was accomplished.")

	resp, err := r.doComplete(ctx, agentName, CompletionRequest{
		Messages: []CompletionMessage{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func fallbackSummary(tasks []planTask, results map[string]taskOutcome) string {
	var b strings.Builder
	b.WriteString("Completed: ")
	first := true
	for _, t := range tasks {
		outcome := results[t.TaskID]
		if outcome.status != taskSuccess {
			continue
		}
		if !first {
			b.WriteString("; ")
		}
		b.WriteString(outcome.response.Message)
		first = false
	}
	return b.String()
}
