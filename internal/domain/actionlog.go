package domain

import (
	"time"
)

// ActionLog records one concrete UI action derived from an assistant
// message. It is created when the message is processed and updated later
// when the action's real-world outcome is known.
//
// Action logs belong to their message and are deleted with it.
type ActionLog struct {
	ID                 int64
	MessageID          int64
	ActionType         string
	ElementDescription string
	CoordX             *float64
	CoordY             *float64
	TextInput          string
	Confidence         float64
	Success            *bool
	Error              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Resolved reports whether the action's outcome has been recorded.
func (a *ActionLog) Resolved() bool {
	return a.Success != nil
}
