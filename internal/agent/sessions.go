package agent

import (
	"context"

	"github.com/symbiote-ai/symbiote/internal/domain"
	"github.com/symbiote-ai/symbiote/internal/session"
)

// Sessions is the slice of the session manager the agents depend on:
// fetch context before a model call, persist the exchange after it.
type Sessions interface {
	GetOrCreateSession(ctx context.Context, sessionID, taskID string) (string, error)
	GetContext(ctx context.Context, sessionID string, includeSystem bool) ([]domain.ContextMessage, error)
	AddSystemMessage(ctx context.Context, sessionID, content string) (int64, error)
	AddUserMessage(ctx context.Context, sessionID, content string, imageRefs []string) (int64, error)
	AddAssistantMessage(ctx context.Context, sessionID, content string, agentType domain.AgentType, modelName string, opts *session.AssistantOptions) (int64, error)
	LogAction(ctx context.Context, messageID int64, action domain.ActionLog) (int64, error)
}

// Ensure the session manager satisfies the agent-facing interface.
var _ Sessions = (*session.Manager)(nil)
