package agentruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cabinmind/copilot/pkg/models"
)

const maxToolIterations = 4

// toolStep is the JSON shape the tool-using agent asks its LLM to respond
// with: either zero or more tool calls to make, or a final reply (§4.7).
type toolStep struct {
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
	Reply     string     `json:"reply,omitempty"`
}

type toolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// newToolUsingHandler builds the tool-using agent variant (§4.7): a system
// prompt describing the declared tools, an LLM turn that either requests
// tool calls or produces a final reply, tool execution through the registry
// (C8), and up to maxToolIterations rounds of call-then-continue before the
// agent gives up and returns whatever text it last produced.
func (r *Runtime) newToolUsingHandler(cfg models.AgentConfig) handler {
	return func(ctx context.Context, session *models.AgentSession, query string, parameters map[string]any) (models.AgentResponse, error) {
		if r.provider == nil || r.tools == nil {
			return models.AgentResponse{
				Status:  models.ResponseError,
				Message: "tool-using agent requires both an llm provider and a tool registry",
			}, nil
		}

		system := r.toolSystemPrompt(cfg)
		transcript := []string{fmt.Sprintf("User: %s", query)}

		var lastReply string
		for i := 0; i < maxToolIterations; i++ {
			resp, err := r.doComplete(ctx, cfg.Name, CompletionRequest{
				System:   system,
				Messages: []CompletionMessage{{Role: "user", Content: strings.Join(transcript, "\n")}},
			})
			if err != nil {
				return models.AgentResponse{Status: models.ResponseError, Message: err.Error()}, nil
			}

			var step toolStep
			if err := json.Unmarshal([]byte(resp.Content), &step); err != nil {
				// Not structured JSON: treat the raw text as the final reply.
				lastReply = resp.Content
				break
			}

			if len(step.ToolCalls) == 0 {
				lastReply = step.Reply
				break
			}

			for _, call := range step.ToolCalls {
				result, err := r.executeTool(ctx, call.Name, call.Arguments)
				if err != nil {
					transcript = append(transcript, fmt.Sprintf("Tool %s failed: %s", call.Name, err.Error()))
					continue
				}
				encoded, _ := json.Marshal(result)
				transcript = append(transcript, fmt.Sprintf("Tool %s returned: %s", call.Name, encoded))
			}
		}

		if needsFollowup(lastReply) {
			return models.AgentResponse{
				Status: models.ResponseWaitingInput,
				Prompt: lastReply,
			}, nil
		}
		return models.AgentResponse{
			Status:  models.ResponseSuccess,
			Message: lastReply,
		}, nil
	}
}

// executeTool runs one tool call through the registry, wrapped in a span
// when a tracer is wired (§6.1).
func (r *Runtime) executeTool(ctx context.Context, name string, arguments json.RawMessage) (any, error) {
	if r.tracer == nil {
		return r.tools.Execute(ctx, name, arguments)
	}
	ctx, span := r.tracer.TraceToolExecution(ctx, name)
	defer span.End()
	result, err := r.tools.Execute(ctx, name, arguments)
	if err != nil {
		r.tracer.RecordError(span, err)
	}
	return result, err
}

func (r *Runtime) toolSystemPrompt(cfg models.AgentConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. %s\n", cfg.Name, cfg.Description)
	b.WriteString("You may call any of the following tools to answer the user:\n")
	for _, t := range r.tools.List() {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	b.WriteString("Respond with JSON only. To call tools: {\"tool_calls\": [{\"name\": \"...\", \"arguments\": {...}}]}. " +
		"To give a final answer: {\"reply\": \"...\"}.")
	return b.String()
}
