package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/symbiote-ai/symbiote/internal/domain"
)

// MessageRepo provides persistence operations for messages.
type MessageRepo struct{}

const messageColumns = `id, chat_id, role, agent_id, content, image_refs_json, action_json, confidence, created_at`

// Create inserts a new message into its chat.
func (MessageRepo) Create(ctx context.Context, q Querier, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	imageRefs, err := marshalStrings(msg.ImageRefs)
	if err != nil {
		return err
	}
	actionData, err := marshalJSON(msg.ActionData)
	if err != nil {
		return err
	}

	var agentID any
	if msg.AgentID != nil {
		agentID = *msg.AgentID
	}
	var confidence any
	if msg.Confidence != nil {
		confidence = *msg.Confidence
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO messages (chat_id, role, agent_id, content, image_refs_json, action_json, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ChatID, string(msg.Role), agentID, msg.Content,
		imageRefs, actionData, confidence, msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	msg.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("message insert id: %w", err)
	}
	return nil
}

// GetByID retrieves a message by its internal row key. Returns (nil, nil)
// when no message matches.
func (MessageRepo) GetByID(ctx context.Context, q Querier, id int64) (*domain.Message, error) {
	row := q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	msg, err := scanMessageRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

// ListByChat returns a chat's messages in creation order. Ties on the
// creation timestamp preserve insertion order via the row key.
func (MessageRepo) ListByChat(ctx context.Context, q Querier, chatID int64) ([]*domain.Message, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id = ? ORDER BY created_at, id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer closeRows(rows, "messages")

	var msgs []*domain.Message
	for rows.Next() {
		msg, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// CountByChat returns the number of messages in a chat.
func (MessageRepo) CountByChat(ctx context.Context, q Querier, chatID int64) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// Delete removes a message and its action logs. The chat's step_count is
// deliberately left alone: it counts assistant messages ever added.
func (MessageRepo) Delete(ctx context.Context, q Querier, id int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM action_logs WHERE message_id = ?`, id); err != nil {
		return fmt.Errorf("delete message action logs: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func scanMessageRow(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var role string
	var agentID sql.NullInt64
	var imageRefs, actionData sql.NullString
	var confidence sql.NullFloat64
	var createdAt int64

	err := row.Scan(
		&msg.ID, &msg.ChatID, &role, &agentID, &msg.Content,
		&imageRefs, &actionData, &confidence, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}

	msg.Role = domain.MessageRole(role)
	msg.CreatedAt = time.Unix(createdAt, 0)
	if agentID.Valid {
		id := agentID.Int64
		msg.AgentID = &id
	}
	if confidence.Valid {
		c := confidence.Float64
		msg.Confidence = &c
	}

	msg.ImageRefs, err = unmarshalStrings(imageRefs)
	if err != nil {
		return nil, err
	}
	msg.ActionData, err = unmarshalJSON(actionData)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
