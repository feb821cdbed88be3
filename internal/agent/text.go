package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/symbiote-ai/symbiote/internal/domain"
	"github.com/symbiote-ai/symbiote/internal/session"
)

const textSystemPrompt = `You are a web testing AI agent. You analyze websites and provide specific actions for testing web applications.
Always return your responses as valid JSON objects with action information.
Be precise about where to click/type based on website structure and common UI patterns.
Since you don't have visual access, use your knowledge of typical website layouts and element descriptions.`

// TextAgent proposes test actions for a website using a text-only model.
// It works from URLs and element descriptions rather than screenshots.
type TextAgent struct {
	client    *Client
	sessions  Sessions
	agentType domain.AgentType
	model     string
	logger    *slog.Logger
}

// NewTextAgent creates a text-based testing agent backed by the given model.
func NewTextAgent(client *Client, sessions Sessions, model string, logger *slog.Logger) *TextAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextAgent{
		client:    client,
		sessions:  sessions,
		agentType: domain.AgentTypeReasoning,
		model:     model,
		logger:    logger,
	}
}

// GetAction asks the model for the next test action against websiteURL.
// The exchange is persisted into the session: the prompt as a user message,
// the raw reply as an agent-tagged assistant message, and each parsed
// action as an action log on that message.
func (a *TextAgent) GetAction(ctx context.Context, sessionID, websiteURL, description string) (string, []TestAction, error) {
	if err := a.ensureSystemPrompt(ctx, sessionID); err != nil {
		return "", nil, err
	}

	prompt := textActionPrompt(websiteURL, description)
	if _, err := a.sessions.AddUserMessage(ctx, sessionID, prompt, nil); err != nil {
		return "", nil, fmt.Errorf("persist user message: %w", err)
	}

	history, err := a.sessions.GetContext(ctx, sessionID, true)
	if err != nil {
		return "", nil, fmt.Errorf("materialize context: %w", err)
	}

	a.logger.Info("requesting action from text model", "model", a.model, "website_url", websiteURL, "context_len", len(history))
	reply, err := a.client.Chat(ctx, a.model, toChatMessages(history))
	if err != nil {
		return "", nil, err
	}

	actions, parseErr := ParseActions(reply.Content)
	if parseErr != nil {
		a.logger.Warn("model reply is not parseable as actions", "error", parseErr)
	}

	opts := &session.AssistantOptions{}
	if len(actions) > 0 {
		confidence := actions[0].Confidence
		opts.Confidence = &confidence
	}
	msgID, err := a.sessions.AddAssistantMessage(ctx, sessionID, reply.Content, a.agentType, a.model, opts)
	if err != nil {
		return "", nil, fmt.Errorf("persist assistant message: %w", err)
	}

	a.recordActions(ctx, msgID, actions)
	return reply.Content, actions, nil
}

// ensureSystemPrompt seeds the system message on the session's first use.
func (a *TextAgent) ensureSystemPrompt(ctx context.Context, sessionID string) error {
	history, err := a.sessions.GetContext(ctx, sessionID, true)
	if err != nil {
		return fmt.Errorf("check context: %w", err)
	}
	if len(history) > 0 {
		return nil
	}
	if _, err := a.sessions.AddSystemMessage(ctx, sessionID, textSystemPrompt); err != nil {
		return fmt.Errorf("seed system prompt: %w", err)
	}
	return nil
}

func (a *TextAgent) recordActions(ctx context.Context, msgID int64, actions []TestAction) {
	for _, action := range actions {
		log := domain.ActionLog{
			ActionType:         action.ActionType,
			ElementDescription: action.ElementDescription,
			TextInput:          action.TextInput,
			Confidence:         action.Confidence,
		}
		if len(action.Coordinates) == 2 {
			x, y := action.Coordinates[0], action.Coordinates[1]
			log.CoordX = &x
			log.CoordY = &y
		}
		if _, err := a.sessions.LogAction(ctx, msgID, log); err != nil {
			a.logger.Warn("failed to record action log", "message_id", msgID, "error", err)
		}
	}
}

func textActionPrompt(websiteURL, description string) string {
	return fmt.Sprintf(`The task is to %s

Website URL: %s

Analyze this website and provide the next one action to perform for testing.
Focus on interactive elements like buttons, forms, links, and navigation.
Use your knowledge of common website layouts and UI patterns.

Return your response as a JSON object with a single action. Action should have:
- action_type: "click", "type", "hover", "navigate", "scroll"
- element_description: clear description of where to perform action
- text_input: only for "type" actions, what text to enter (optional)
- confidence: your confidence level (0.0 to 1.0)
- coordinates: estimated [x, y] pixel position for the action`, description, websiteURL)
}

func toChatMessages(history []domain.ContextMessage) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		messages = append(messages, ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return messages
}
