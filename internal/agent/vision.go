package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"github.com/symbiote-ai/symbiote/internal/domain"
	"github.com/symbiote-ai/symbiote/internal/session"
)

const visionSystemPrompt = `You are a web testing AI agent. You analyze screenshots and provide specific actions for testing websites.
Always return your responses as valid JSON arrays of action objects.
Be precise about where to click/type based on visible elements.`

// VisionAgent proposes test actions from screenshots using an
// image-capable model. Screenshot paths are stored on the user message as
// opaque image references; the base64 payloads only travel to the endpoint.
type VisionAgent struct {
	client    *Client
	sessions  Sessions
	agentType domain.AgentType
	model     string
	logger    *slog.Logger
}

// NewVisionAgent creates a vision-based testing agent backed by the given
// model.
func NewVisionAgent(client *Client, sessions Sessions, model string, logger *slog.Logger) *VisionAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &VisionAgent{
		client:    client,
		sessions:  sessions,
		agentType: domain.AgentTypeVision,
		model:     model,
		logger:    logger,
	}
}

// GetAction asks the model for the next test actions given a screenshot.
// As with the text agent, the whole exchange is persisted into the session.
func (a *VisionAgent) GetAction(ctx context.Context, sessionID, imagePath, description string) (string, []TestAction, error) {
	imageB64, err := encodeImage(imagePath)
	if err != nil {
		return "", nil, err
	}

	if err := a.ensureSystemPrompt(ctx, sessionID); err != nil {
		return "", nil, err
	}

	prompt := visionActionPrompt(description)
	if _, err := a.sessions.AddUserMessage(ctx, sessionID, prompt, []string{imagePath}); err != nil {
		return "", nil, fmt.Errorf("persist user message: %w", err)
	}

	history, err := a.sessions.GetContext(ctx, sessionID, true)
	if err != nil {
		return "", nil, fmt.Errorf("materialize context: %w", err)
	}

	// The stored context carries opaque refs, not payloads. Attach the
	// base64 image to the final user turn only.
	messages := toChatMessages(history)
	if len(messages) > 0 {
		messages[len(messages)-1].Images = []string{imageB64}
	}

	a.logger.Info("requesting action from vision model", "model", a.model, "image", imagePath, "context_len", len(history))
	reply, err := a.client.Chat(ctx, a.model, messages)
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

func (a *VisionAgent) ensureSystemPrompt(ctx context.Context, sessionID string) error {
	history, err := a.sessions.GetContext(ctx, sessionID, true)
	if err != nil {
		return fmt.Errorf("check context: %w", err)
	}
	if len(history) > 0 {
		return nil
	}
	if _, err := a.sessions.AddSystemMessage(ctx, sessionID, visionSystemPrompt); err != nil {
		return fmt.Errorf("seed system prompt: %w", err)
	}
	return nil
}

func (a *VisionAgent) recordActions(ctx context.Context, msgID int64, actions []TestAction) {
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

func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func visionActionPrompt(description string) string {
	return fmt.Sprintf(`The task is to %s

Analyze this website screenshot and provide the next actions to perform for testing.
Focus on interactive elements like buttons, forms, links, and navigation.

Return your response as a JSON array of actions. Each action should have:
- action_type: "click", "type", "hover", "scroll", "wait", "navigate"
- element_description: clear description of where to perform action
- text_input: only for "type" actions, what text to enter
- confidence: your confidence level (0.0 to 1.0)
- coordinates: [x, y] position of the action target`, description)
}
