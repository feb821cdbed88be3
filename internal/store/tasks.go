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

// TaskRepo provides persistence operations for tasks.
type TaskRepo struct{}

const taskColumns = `id, external_id, title, description, website_url, status,
       metadata_json, created_at, updated_at, completed_at`

// Create inserts a new task. Defaults are applied in place: a fresh UUID
// external ID when unset, pending status, and creation timestamps.
func (TaskRepo) Create(ctx context.Context, q Querier, task *domain.Task) error {
	if task.ExternalID == "" {
		task.ExternalID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = task.CreatedAt

	metadata, err := marshalJSON(task.Metadata)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO tasks (external_id, title, description, website_url, status, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ExternalID, task.Title, nullString(task.Description), nullString(task.WebsiteURL),
		string(task.Status), metadata, task.CreatedAt.Unix(), task.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	task.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("task insert id: %w", err)
	}
	return nil
}

// GetByID retrieves a task by its internal row key. Returns (nil, nil) when
// no task matches.
func (TaskRepo) GetByID(ctx context.Context, q Querier, id int64) (*domain.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// GetByExternalID retrieves a task by its stable UUID. Returns (nil, nil)
// when no task matches.
func (TaskRepo) GetByExternalID(ctx context.Context, q Querier, externalID string) (*domain.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE external_id = ?`, externalID)
	return scanTask(row)
}

// UpdateStatus sets a task's status. completed_at is stamped exactly when
// the status transitions to completed and left untouched otherwise.
func (TaskRepo) UpdateStatus(ctx context.Context, q Querier, id int64, status domain.TaskStatus) error {
	now := time.Now().Unix()

	var res sql.Result
	var err error
	if status == domain.TaskStatusCompleted {
		res, err = q.ExecContext(ctx,
			`UPDATE tasks SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
			string(status), now, now, id)
	} else {
		res, err = q.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), now, id)
	}
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update task status: task %d not found", id)
	}
	return nil
}

// Delete removes a task together with its chats, their messages and the
// messages' action logs. The cascade is issued explicitly so it does not
// depend on connection pragmas.
func (TaskRepo) Delete(ctx context.Context, q Querier, id int64) error {
	steps := []struct {
		desc  string
		query string
	}{
		{"delete task action logs", `
			DELETE FROM action_logs WHERE message_id IN (
				SELECT m.id FROM messages m
				JOIN chats c ON c.id = m.chat_id
				WHERE c.task_id = ?)`},
		{"delete task messages", `
			DELETE FROM messages WHERE chat_id IN (
				SELECT id FROM chats WHERE task_id = ?)`},
		{"delete task chats", `DELETE FROM chats WHERE task_id = ?`},
		{"delete task", `DELETE FROM tasks WHERE id = ?`},
	}
	for _, step := range steps {
		if _, err := q.ExecContext(ctx, step.query, id); err != nil {
			return fmt.Errorf("%s: %w", step.desc, err)
		}
	}
	return nil
}

// List returns all tasks, newest first.
func (TaskRepo) List(ctx context.Context, q Querier) ([]*domain.Task, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer closeRows(rows, "tasks")

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row *sql.Row) (*domain.Task, error) {
	task, err := scanTaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return task, err
}

func scanTaskRow(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var description, websiteURL, metadata sql.NullString
	var status string
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := row.Scan(
		&task.ID, &task.ExternalID, &task.Title, &description, &websiteURL,
		&status, &metadata, &createdAt, &updatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan task row: %w", err)
	}

	task.Description = description.String
	task.WebsiteURL = websiteURL.String
	task.Status = domain.TaskStatus(status)
	task.CreatedAt = time.Unix(createdAt, 0)
	task.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt.Valid {
		ts := time.Unix(completedAt.Int64, 0)
		task.CompletedAt = &ts
	}

	task.Metadata, err = unmarshalJSON(metadata)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
