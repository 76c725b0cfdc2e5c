package agentruntime

import (
	"context"
	"fmt"
	"strings"

	"github.com/cabinmind/copilot/pkg/models"
)

// newSimpleHandler builds the simple agent variant (§4.7): one LLM call (or
// a canned reply when no provider is configured), one AgentResponse, no
// session context and no tools.
func (r *Runtime) newSimpleHandler(cfg models.AgentConfig) handler {
	return func(ctx context.Context, session *models.AgentSession, query string, parameters map[string]any) (models.AgentResponse, error) {
		system := fmt.Sprintf("You are %s. %s", cfg.Name, cfg.Description)
		content, err := r.complete(ctx, cfg.Name, system, query)
		if err != nil {
			content = cfg.Description
		}
		return models.AgentResponse{
			Status:  models.ResponseSuccess,
			Message: content,
		}, nil
	}
}

// newSessionHandler builds the session agent variant (§4.7): like simple,
// but the prior turn's context (if any) is folded into the prompt. The
// session agent never reads or writes session_id itself — that bookkeeping
// belongs to the adapter/C4 boundary.
//
// When a Conversation store is wired in (SetConversation), recall also
// draws on the user's long-term profile and recent short-term history
// (§4.9), not just the single session.Context["last_reply"] the teacher's
// shape carried; every turn is appended back so the next session (or the
// next agent entirely) can recall it too.
func (r *Runtime) newSessionHandler(cfg models.AgentConfig) handler {
	return func(ctx context.Context, session *models.AgentSession, query string, parameters map[string]any) (models.AgentResponse, error) {
		system := fmt.Sprintf("You are %s. %s", cfg.Name, cfg.Description)
		userID, _ := parameters["_user_id"].(string)

		user := query
		if session != nil {
			if prior, ok := session.Context["last_reply"].(string); ok && prior != "" {
				user = fmt.Sprintf("Previous turn, you said: %q.\nThe user now says: %q.", prior, query)
			}
		}
		if r.conversation != nil && userID != "" {
			user = withRecall(r.conversation, userID, user)
		}

		content, err := r.complete(ctx, cfg.Name, system, user)
		if err != nil {
			content = cfg.Description
		}

		if session != nil {
			if session.Context == nil {
				session.Context = make(map[string]any)
			}
			session.Context["last_reply"] = content
		}

		if r.conversation != nil && userID != "" {
			_ = r.conversation.Append(ctx, userID, cfg.Name, models.ShortTermMemory{
				Query:    query,
				Response: content,
				Agent:    cfg.Name,
				Success:  true,
			})
		}

		return models.AgentResponse{
			Status:  models.ResponseSuccess,
			Message: content,
		}, nil
	}
}

// withRecall prepends the user's long-term summary and most recent turns to
// the prompt, matching memory.Conversation's own recency-first recall
// contract (§4.9).
func withRecall(conv interface {
	LongTerm(userID string) models.LongTermMemory
	Recent(userID string, n int) []models.ShortTermMemory
}, userID, user string) string {
	var b strings.Builder

	longTerm := conv.LongTerm(userID)
	if longTerm.Summary != "" {
		fmt.Fprintf(&b, "What you remember about this user: %s\n", longTerm.Summary)
	}

	for _, turn := range conv.Recent(userID, 3) {
		fmt.Fprintf(&b, "Earlier, user said %q and you replied %q.\n", turn.Query, turn.Response)
	}

	b.WriteString(user)
	return b.String()
}
