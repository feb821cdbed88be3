// Package session implements the conversation session manager: the facade
// agent clients use to persist multi-turn conversations and replay them as
// model context.
//
// Every operation that performs more than one read/mutate step runs inside
// a single store transaction, so a failure partway leaves the chat's
// step_count and message set mutually consistent.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/symbiote-ai/symbiote/internal/domain"
	"github.com/symbiote-ai/symbiote/internal/store"
)

// Auditor receives conversation audit events after they commit.
type Auditor interface {
	Log(event AuditEvent)
}

// Notifier is told about committed message appends, e.g. to fan them out to
// live websocket subscribers.
type Notifier interface {
	MessageAppended(sessionID string, msg domain.ContextMessage)
}

// Manager orchestrates tasks, chats, messages and agents on top of the
// repository layer. It is safe for concurrent use: same-session mutations
// serialize at the store's write transaction, and step_count is bumped with
// a relative update.
type Manager struct {
	store    *store.SQLiteStore
	audit    Auditor
	notifier Notifier
}

// Option configures a Manager.
type Option func(*Manager)

// WithAuditor attaches a conversation audit logger.
func WithAuditor(a Auditor) Option {
	return func(m *Manager) { m.audit = a }
}

// WithNotifier attaches a message-append notifier.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// NewManager creates a session manager over the given store.
func NewManager(st *store.SQLiteStore, opts ...Option) *Manager {
	m := &Manager{store: st, audit: noopAuditor{}}
	for _, opt := range opts {
		opt(m)
	}
	if m.audit == nil {
		m.audit = noopAuditor{}
	}
	return m
}

type noopAuditor struct{}

func (noopAuditor) Log(AuditEvent) {}

// NewTask describes a task to create.
type NewTask struct {
	Title       string
	Description string
	WebsiteURL  string
	Metadata    map[string]any
}

// TaskInfo is the read-only projection of a task returned to callers.
type TaskInfo struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	WebsiteURL  string            `json:"website_url,omitempty"`
	Status      domain.TaskStatus `json:"status"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// AssistantOptions carries the optional attributes of an assistant message.
type AssistantOptions struct {
	ActionData map[string]any
	Confidence *float64
}

// CreateTask allocates a new task with pending status and returns its
// external UUID.
func (m *Manager) CreateTask(ctx context.Context, nt NewTask) (string, error) {
	if nt.Title == "" {
		return "", &ValidationError{Field: "title", Reason: "must not be empty"}
	}

	task := &domain.Task{
		Title:       nt.Title,
		Description: nt.Description,
		WebsiteURL:  nt.WebsiteURL,
		Metadata:    nt.Metadata,
	}
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		return m.store.Tasks.Create(ctx, q, task)
	})
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	m.audit.Log(AuditEvent{
		TaskID:    task.ExternalID,
		EventType: "task_created",
		Content:   task.Title,
	})
	return task.ExternalID, nil
}

// GetTask returns the task projection for an external task ID.
func (m *Manager) GetTask(ctx context.Context, taskID string) (*TaskInfo, error) {
	var info *TaskInfo
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		task, err := m.store.Tasks.GetByExternalID(ctx, q, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return ErrTaskNotFound
		}
		info = taskInfo(task)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// UpdateTaskStatus sets a task's status. It returns false (without error)
// when the task does not resolve. Transitioning to completed stamps
// completed_at; no other transition touches it. The status graph is not
// enforced: any status may be set from any other, though reopening a task
// that already reached a final status is logged.
func (m *Manager) UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) (bool, error) {
	if !status.Valid() {
		return false, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}

	found := false
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		task, err := m.store.Tasks.GetByExternalID(ctx, q, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return nil
		}
		found = true
		if task.IsTerminal() && status != task.Status {
			slog.Info("changing status of a finished task",
				"task_id", taskID, "from", task.Status, "to", status)
		}
		return m.store.Tasks.UpdateStatus(ctx, q, task.ID, status)
	})
	if err != nil {
		return false, fmt.Errorf("update task status: %w", err)
	}

	if found {
		m.audit.Log(AuditEvent{
			TaskID:    taskID,
			EventType: "task_status_changed",
			Content:   string(status),
		})
	}
	return found, nil
}

// DeleteTask removes a task and cascades to its chats, messages and action
// logs.
func (m *Manager) DeleteTask(ctx context.Context, taskID string) error {
	return m.store.WithTx(ctx, func(q store.Querier) error {
		task, err := m.store.Tasks.GetByExternalID(ctx, q, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return ErrTaskNotFound
		}
		return m.store.Tasks.Delete(ctx, q, task.ID)
	})
}

// ListTasks returns all task projections, newest first.
func (m *Manager) ListTasks(ctx context.Context) ([]*TaskInfo, error) {
	var infos []*TaskInfo
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		tasks, err := m.store.Tasks.List(ctx, q)
		if err != nil {
			return err
		}
		infos = make([]*TaskInfo, 0, len(tasks))
		for _, task := range tasks {
			infos = append(infos, taskInfo(task))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return infos, nil
}

// CreateSession creates a new chat bound to the given task. When sessionID
// is empty a UUID is generated. Fails with ErrTaskNotFound when the task
// does not resolve.
func (m *Manager) CreateSession(ctx context.Context, taskID, sessionID string, contextData map[string]any) (string, error) {
	chat := &domain.Chat{SessionID: sessionID, Context: contextData}
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		task, err := m.store.Tasks.GetByExternalID(ctx, q, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return ErrTaskNotFound
		}
		chat.TaskID = task.ID
		return m.store.Chats.Create(ctx, q, chat)
	})
	if err != nil {
		return "", err
	}

	m.audit.Log(AuditEvent{
		TaskID:    taskID,
		SessionID: chat.SessionID,
		EventType: "session_created",
	})
	return chat.SessionID, nil
}

// GetOrCreateSession returns the existing chat for sessionID unchanged, or
// creates one. When taskID does not resolve a placeholder task is created
// on the fly, so this never fails with ErrTaskNotFound and callers can start
// a conversation without pre-registering the task.
func (m *Manager) GetOrCreateSession(ctx context.Context, sessionID, taskID string) (string, error) {
	if sessionID == "" {
		return "", &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}

	created := false
	var boundTaskID string
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		chat, err := m.store.Chats.GetBySessionID(ctx, q, sessionID)
		if err != nil {
			return err
		}
		if chat != nil {
			return nil
		}

		task, err := m.store.Tasks.GetByExternalID(ctx, q, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			// Auto-create a placeholder task so callers that don't
			// pre-register tasks never hit ErrTaskNotFound here.
			task = &domain.Task{
				ExternalID:  taskID,
				Title:       "Task " + taskID,
				Description: "Auto-created task",
			}
			if err := m.store.Tasks.Create(ctx, q, task); err != nil {
				return err
			}
		}

		created = true
		boundTaskID = task.ExternalID
		return m.store.Chats.Create(ctx, q, &domain.Chat{TaskID: task.ID, SessionID: sessionID})
	})
	if err != nil {
		return "", fmt.Errorf("get or create session: %w", err)
	}

	if created {
		m.audit.Log(AuditEvent{
			TaskID:    boundTaskID,
			SessionID: sessionID,
			EventType: "session_created",
		})
	}
	return sessionID, nil
}

// SessionExists reports whether a chat exists for the session ID.
func (m *Manager) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	exists := false
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		chat, err := m.store.Chats.GetBySessionID(ctx, q, sessionID)
		if err != nil {
			return err
		}
		exists = chat != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("session exists: %w", err)
	}
	return exists, nil
}

// AddSystemMessage appends a system message to the session. step_count is
// untouched.
func (m *Manager) AddSystemMessage(ctx context.Context, sessionID, content string) (int64, error) {
	return m.appendMessage(ctx, sessionID, &domain.Message{
		Role:    domain.RoleSystem,
		Content: content,
	}, nil)
}

// AddUserMessage appends a user message to the session, optionally carrying
// opaque image references. step_count is untouched.
func (m *Manager) AddUserMessage(ctx context.Context, sessionID, content string, imageRefs []string) (int64, error) {
	return m.appendMessage(ctx, sessionID, &domain.Message{
		Role:      domain.RoleUser,
		Content:   content,
		ImageRefs: imageRefs,
	}, nil)
}

// AddAssistantMessage appends an assistant message: the agent record for
// the given type and model is resolved or created, the message is linked to
// it, and the chat's step_count is incremented, all in one transaction.
func (m *Manager) AddAssistantMessage(ctx context.Context, sessionID, content string, agentType domain.AgentType, modelName string, opts *AssistantOptions) (int64, error) {
	if !agentType.Valid() {
		return 0, &ValidationError{Field: "agent_type", Reason: fmt.Sprintf("unknown agent type %q", agentType)}
	}
	if modelName == "" {
		return 0, &ValidationError{Field: "model_name", Reason: "must not be empty"}
	}

	msg := &domain.Message{
		Role:    domain.RoleAssistant,
		Content: content,
	}
	if opts != nil {
		if opts.Confidence != nil && (*opts.Confidence < 0 || *opts.Confidence > 1) {
			return 0, &ValidationError{Field: "confidence", Reason: "must be in [0.0, 1.0]"}
		}
		msg.ActionData = opts.ActionData
		msg.Confidence = opts.Confidence
	}

	assistant := &assistantLink{agentType: agentType, modelName: modelName}
	return m.appendMessage(ctx, sessionID, msg, assistant)
}

// assistantLink carries the agent resolution an assistant append performs
// inside the transaction.
type assistantLink struct {
	agentType domain.AgentType
	modelName string
}

func (m *Manager) appendMessage(ctx context.Context, sessionID string, msg *domain.Message, assistant *assistantLink) (int64, error) {
	var stepCount int
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		chat, err := m.store.Chats.GetBySessionID(ctx, q, sessionID)
		if err != nil {
			return err
		}
		if chat == nil {
			return ErrSessionNotFound
		}
		msg.ChatID = chat.ID

		if assistant != nil {
			agent, err := m.store.Agents.GetOrCreate(ctx, q, assistant.agentType, assistant.modelName)
			if err != nil {
				return err
			}
			msg.AgentID = &agent.ID
		}

		if err := m.store.Messages.Create(ctx, q, msg); err != nil {
			return err
		}

		stepCount = chat.StepCount
		if assistant != nil {
			if err := m.store.Chats.IncrementStepCount(ctx, q, chat.ID); err != nil {
				return err
			}
			stepCount++
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("append %s message: %w", msg.Role, err)
	}

	event := AuditEvent{
		SessionID: sessionID,
		EventType: "message_added",
		Role:      string(msg.Role),
		Content:   msg.Content,
		StepCount: stepCount,
	}
	if assistant != nil {
		event.Agent = string(assistant.agentType)
		event.Model = assistant.modelName
	}
	m.audit.Log(event)

	if m.notifier != nil {
		m.notifier.MessageAppended(sessionID, domain.ContextMessage{
			Role:      msg.Role,
			Content:   msg.Content,
			ImageRefs: msg.ImageRefs,
		})
	}
	return msg.ID, nil
}

// GetContext reconstructs the session's message history in creation order
// as a role/content sequence suitable for a model prompt. When
// includeSystem is false, system messages are filtered out and the relative
// order of the remainder is preserved.
func (m *Manager) GetContext(ctx context.Context, sessionID string, includeSystem bool) ([]domain.ContextMessage, error) {
	var context []domain.ContextMessage
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		chat, err := m.store.Chats.GetBySessionID(ctx, q, sessionID)
		if err != nil {
			return err
		}
		if chat == nil {
			return ErrSessionNotFound
		}

		msgs, err := m.store.Messages.ListByChat(ctx, q, chat.ID)
		if err != nil {
			return err
		}
		context = make([]domain.ContextMessage, 0, len(msgs))
		for _, msg := range msgs {
			if !includeSystem && msg.Role == domain.RoleSystem {
				continue
			}
			context = append(context, domain.ContextMessage{
				Role:      msg.Role,
				Content:   msg.Content,
				ImageRefs: msg.ImageRefs,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return context, nil
}

// GetStepCount returns the number of assistant messages ever added to the
// session.
func (m *Manager) GetStepCount(ctx context.Context, sessionID string) (int, error) {
	count := 0
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		chat, err := m.store.Chats.GetBySessionID(ctx, q, sessionID)
		if err != nil {
			return err
		}
		if chat == nil {
			return ErrSessionNotFound
		}
		count = chat.StepCount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetSessionInfo returns the read-only projection of a session.
func (m *Manager) GetSessionInfo(ctx context.Context, sessionID string) (*domain.SessionInfo, error) {
	var info *domain.SessionInfo
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		chat, err := m.store.Chats.GetBySessionID(ctx, q, sessionID)
		if err != nil {
			return err
		}
		if chat == nil {
			return ErrSessionNotFound
		}

		task, err := m.store.Tasks.GetByID(ctx, q, chat.TaskID)
		if err != nil {
			return err
		}
		count, err := m.store.Messages.CountByChat(ctx, q, chat.ID)
		if err != nil {
			return err
		}

		info = &domain.SessionInfo{
			SessionID:    chat.SessionID,
			StepCount:    chat.StepCount,
			IsActive:     chat.IsActive,
			MessageCount: count,
			CreatedAt:    chat.CreatedAt,
			UpdatedAt:    chat.UpdatedAt,
		}
		if task != nil {
			info.TaskID = task.ExternalID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// ListSessionsForTask returns summaries of all chats bound to a task, in
// creation order.
func (m *Manager) ListSessionsForTask(ctx context.Context, taskID string) ([]domain.SessionSummary, error) {
	var summaries []domain.SessionSummary
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		task, err := m.store.Tasks.GetByExternalID(ctx, q, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return ErrTaskNotFound
		}

		chats, err := m.store.Chats.ListByTask(ctx, q, task.ID)
		if err != nil {
			return err
		}
		summaries = make([]domain.SessionSummary, 0, len(chats))
		for _, chat := range chats {
			summaries = append(summaries, domain.SessionSummary{
				SessionID: chat.SessionID,
				StepCount: chat.StepCount,
				IsActive:  chat.IsActive,
				CreatedAt: chat.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// GetAgentsForTask returns the distinct agents that produced assistant
// messages in any of the task's sessions.
func (m *Manager) GetAgentsForTask(ctx context.Context, taskID string) ([]domain.AgentSummary, error) {
	var summaries []domain.AgentSummary
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		task, err := m.store.Tasks.GetByExternalID(ctx, q, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return ErrTaskNotFound
		}

		agents, err := m.store.Agents.ListByTask(ctx, q, task.ID)
		if err != nil {
			return err
		}
		summaries = make([]domain.AgentSummary, 0, len(agents))
		for _, agent := range agents {
			summaries = append(summaries, domain.AgentSummary{
				Name:  agent.Name,
				Type:  agent.AgentType,
				Model: agent.ModelName,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// DeactivateSession marks a session inactive. Messages and step_count are
// untouched.
func (m *Manager) DeactivateSession(ctx context.Context, sessionID string) error {
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		chat, err := m.store.Chats.GetBySessionID(ctx, q, sessionID)
		if err != nil {
			return err
		}
		if chat == nil {
			return ErrSessionNotFound
		}
		return m.store.Chats.Deactivate(ctx, q, chat.ID)
	})
	if err != nil {
		return err
	}

	m.audit.Log(AuditEvent{SessionID: sessionID, EventType: "session_deactivated"})
	return nil
}

// DeleteSession removes a session with its messages and their action logs.
// The owning task is untouched.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		chat, err := m.store.Chats.GetBySessionID(ctx, q, sessionID)
		if err != nil {
			return err
		}
		if chat == nil {
			return ErrSessionNotFound
		}
		return m.store.Chats.Delete(ctx, q, chat.ID)
	})
	if err != nil {
		return err
	}

	m.audit.Log(AuditEvent{SessionID: sessionID, EventType: "session_deleted"})
	return nil
}

// DeleteMessage removes a single message and its action logs. The chat's
// step_count is untouched: it counts assistant messages ever added.
func (m *Manager) DeleteMessage(ctx context.Context, messageID int64) error {
	event := AuditEvent{EventType: "message_deleted"}
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		msg, err := m.store.Messages.GetByID(ctx, q, messageID)
		if err != nil {
			return err
		}
		if msg == nil {
			return &ValidationError{Field: "message_id", Reason: fmt.Sprintf("message %d not found", messageID)}
		}
		event.Role = string(msg.Role)

		chat, err := m.store.Chats.GetByID(ctx, q, msg.ChatID)
		if err != nil {
			return err
		}
		if chat != nil {
			event.SessionID = chat.SessionID
		}

		if msg.AgentID != nil {
			agent, err := m.store.Agents.GetByID(ctx, q, *msg.AgentID)
			if err != nil {
				return err
			}
			if agent != nil {
				event.Agent = string(agent.AgentType)
				event.Model = agent.ModelName
			}
		}
		return m.store.Messages.Delete(ctx, q, messageID)
	})
	if err != nil {
		return err
	}

	m.audit.Log(event)
	return nil
}

// LogAction records a concrete UI action derived from an assistant message.
func (m *Manager) LogAction(ctx context.Context, messageID int64, action domain.ActionLog) (int64, error) {
	if action.Confidence < 0 || action.Confidence > 1 {
		return 0, &ValidationError{Field: "confidence", Reason: "must be in [0.0, 1.0]"}
	}
	action.MessageID = messageID

	err := m.store.WithTx(ctx, func(q store.Querier) error {
		msg, err := m.store.Messages.GetByID(ctx, q, messageID)
		if err != nil {
			return err
		}
		if msg == nil {
			return &ValidationError{Field: "message_id", Reason: fmt.Sprintf("message %d not found", messageID)}
		}
		return m.store.ActionLogs.Create(ctx, q, &action)
	})
	if err != nil {
		return 0, err
	}
	return action.ID, nil
}

// ResolveAction records the real-world outcome of a previously logged
// action.
func (m *Manager) ResolveAction(ctx context.Context, actionID int64, success bool, errText string) error {
	return m.store.WithTx(ctx, func(q store.Querier) error {
		return m.store.ActionLogs.RecordOutcome(ctx, q, actionID, success, errText)
	})
}

// ListActions returns the action logs recorded for a message.
func (m *Manager) ListActions(ctx context.Context, messageID int64) ([]*domain.ActionLog, error) {
	var logs []*domain.ActionLog
	err := m.store.WithTx(ctx, func(q store.Querier) error {
		var err error
		logs, err = m.store.ActionLogs.ListByMessage(ctx, q, messageID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return logs, nil
}

func taskInfo(task *domain.Task) *TaskInfo {
	return &TaskInfo{
		ID:          task.ExternalID,
		Title:       task.Title,
		Description: task.Description,
		WebsiteURL:  task.WebsiteURL,
		Status:      task.Status,
		Metadata:    task.Metadata,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
		CompletedAt: task.CompletedAt,
	}
}
