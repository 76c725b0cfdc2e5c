package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cabinmind/copilot/internal/agentruntime"
)

// judgePrompt asks the provider for a single verdict word so the response
// can be parsed without a structured-output round trip.
const judgePrompt = `You grade one voice-assistant turn. Expected response type: %q. User query: %q. Assistant response: %q.

Reply with exactly one word: PASS if the response plausibly satisfies the expected type and answers the query, otherwise FAIL.`

// LLMJudge scores response quality with an agentruntime.Provider (§4.10 "LLM
// judge"). It degrades to treating any error as a failed judgement rather
// than aborting the case.
type LLMJudge struct {
	Provider agentruntime.Provider
}

func (j LLMJudge) Judge(ctx context.Context, query, expectedResponseType, response string) (bool, error) {
	if j.Provider == nil {
		return false, fmt.Errorf("evaluator: llm judge has no provider configured")
	}
	resp, err := j.Provider.Complete(ctx, agentruntime.CompletionRequest{
		Messages: []agentruntime.CompletionMessage{
			{Role: "user", Content: fmt.Sprintf(judgePrompt, expectedResponseType, query, response)},
		},
		MaxTokens: 8,
	})
	if err != nil {
		return false, fmt.Errorf("evaluator: llm judge: %w", err)
	}
	return strings.Contains(strings.ToUpper(resp.Content), "PASS"), nil
}
