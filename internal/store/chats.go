package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/symbiote-ai/symbiote/internal/domain"
)

// ChatRepo provides persistence operations for chats (conversation sessions).
type ChatRepo struct{}

const chatColumns = `id, task_id, session_id, step_count, is_active, context_json, created_at, updated_at`

// Create inserts a new chat bound to a task. A fresh UUID session ID is
// generated when unset; step_count starts at 0 and is_active at true.
func (ChatRepo) Create(ctx context.Context, q Querier, chat *domain.Chat) error {
	if chat.SessionID == "" {
		chat.SessionID = uuid.NewString()
	}
	now := time.Now()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = chat.CreatedAt
	chat.IsActive = true

	contextJSON, err := marshalJSON(chat.Context)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO chats (task_id, session_id, step_count, is_active, context_json, created_at, updated_at)
		VALUES (?, ?, 0, 1, ?, ?, ?)`,
		chat.TaskID, chat.SessionID, contextJSON, chat.CreatedAt.Unix(), chat.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}

	chat.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("chat insert id: %w", err)
	}
	chat.StepCount = 0
	return nil
}

// GetByID retrieves a chat by its internal row key. Returns (nil, nil) when
// no chat matches.
func (ChatRepo) GetByID(ctx context.Context, q Querier, id int64) (*domain.Chat, error) {
	row := q.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id)
	return scanChat(row)
}

// GetBySessionID retrieves a chat by its stable session UUID. Returns
// (nil, nil) when no chat matches.
func (ChatRepo) GetBySessionID(ctx context.Context, q Querier, sessionID string) (*domain.Chat, error) {
	row := q.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE session_id = ?`, sessionID)
	return scanChat(row)
}

// ListByTask returns all chats for a task in creation order.
func (ChatRepo) ListByTask(ctx context.Context, q Querier, taskID int64) ([]*domain.Chat, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE task_id = ? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer closeRows(rows, "chats")

	var chats []*domain.Chat
	for rows.Next() {
		chat, err := scanChatRow(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return chats, nil
}

// IncrementStepCount bumps a chat's step count by one. The increment is
// issued as a relative update so concurrent assistant replies cannot
// collapse to a single increment.
func (ChatRepo) IncrementStepCount(ctx context.Context, q Querier, id int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE chats SET step_count = step_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("increment step count: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("increment step count: chat %d not found", id)
	}
	return nil
}

// Deactivate marks a chat inactive. step_count and messages are untouched.
func (ChatRepo) Deactivate(ctx context.Context, q Querier, id int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE chats SET is_active = 0, updated_at = ? WHERE id = ?`,
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("deactivate chat: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("deactivate chat: chat %d not found", id)
	}
	return nil
}

// Delete removes a chat with its messages and their action logs.
func (ChatRepo) Delete(ctx context.Context, q Querier, id int64) error {
	steps := []struct {
		desc  string
		query string
	}{
		{"delete chat action logs", `
			DELETE FROM action_logs WHERE message_id IN (
				SELECT id FROM messages WHERE chat_id = ?)`},
		{"delete chat messages", `DELETE FROM messages WHERE chat_id = ?`},
		{"delete chat", `DELETE FROM chats WHERE id = ?`},
	}
	for _, step := range steps {
		if _, err := q.ExecContext(ctx, step.query, id); err != nil {
			return fmt.Errorf("%s: %w", step.desc, err)
		}
	}
	return nil
}

func scanChat(row *sql.Row) (*domain.Chat, error) {
	chat, err := scanChatRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return chat, err
}

func scanChatRow(row rowScanner) (*domain.Chat, error) {
	var chat domain.Chat
	var contextJSON sql.NullString
	var isActive int
	var createdAt, updatedAt int64

	err := row.Scan(
		&chat.ID, &chat.TaskID, &chat.SessionID, &chat.StepCount,
		&isActive, &contextJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat row: %w", err)
	}

	chat.IsActive = isActive != 0
	chat.CreatedAt = time.Unix(createdAt, 0)
	chat.UpdatedAt = time.Unix(updatedAt, 0)

	chat.Context, err = unmarshalJSON(contextJSON)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}
