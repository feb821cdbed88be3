package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/symbiote-ai/symbiote/internal/domain"
)

// ActionLogRepo provides persistence operations for action logs.
type ActionLogRepo struct{}

const actionLogColumns = `id, message_id, action_type, element_description, coord_x, coord_y,
       text_input, confidence, success, error, created_at, updated_at`

// Create inserts a new action log for a message. The outcome fields stay
// unset until RecordOutcome is called.
func (ActionLogRepo) Create(ctx context.Context, q Querier, log *domain.ActionLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	log.UpdatedAt = log.CreatedAt

	var coordX, coordY any
	if log.CoordX != nil {
		coordX = *log.CoordX
	}
	if log.CoordY != nil {
		coordY = *log.CoordY
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO action_logs (message_id, action_type, element_description, coord_x, coord_y, text_input, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.MessageID, log.ActionType, log.ElementDescription, coordX, coordY,
		nullString(log.TextInput), log.Confidence, log.CreatedAt.Unix(), log.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert action log: %w", err)
	}

	log.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("action log insert id: %w", err)
	}
	return nil
}

// ListByMessage returns a message's action logs in creation order.
func (ActionLogRepo) ListByMessage(ctx context.Context, q Querier, messageID int64) ([]*domain.ActionLog, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+actionLogColumns+` FROM action_logs WHERE message_id = ? ORDER BY created_at, id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query action logs: %w", err)
	}
	defer closeRows(rows, "action_logs")

	var logs []*domain.ActionLog
	for rows.Next() {
		log, err := scanActionLogRow(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action logs: %w", err)
	}
	return logs, nil
}

// RecordOutcome stores the real-world result of an action once known.
func (ActionLogRepo) RecordOutcome(ctx context.Context, q Querier, id int64, success bool, errText string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE action_logs SET success = ?, error = ?, updated_at = ? WHERE id = ?`,
		boolToInt(success), nullString(errText), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("record action outcome: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("record action outcome: action log %d not found", id)
	}
	return nil
}

func scanActionLogRow(row rowScanner) (*domain.ActionLog, error) {
	var log domain.ActionLog
	var coordX, coordY sql.NullFloat64
	var textInput, errText sql.NullString
	var success sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&log.ID, &log.MessageID, &log.ActionType, &log.ElementDescription,
		&coordX, &coordY, &textInput, &log.Confidence,
		&success, &errText, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan action log row: %w", err)
	}

	if coordX.Valid {
		v := coordX.Float64
		log.CoordX = &v
	}
	if coordY.Valid {
		v := coordY.Float64
		log.CoordY = &v
	}
	log.TextInput = textInput.String
	log.Error = errText.String
	if success.Valid {
		v := success.Int64 != 0
		log.Success = &v
	}
	log.CreatedAt = time.Unix(createdAt, 0)
	log.UpdatedAt = time.Unix(updatedAt, 0)
	return &log, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
