package domain

import (
	"time"
)

// Chat is one ongoing conversation session scoped to a single task.
// Multiple agents can participate in the same chat.
//
// StepCount equals the number of assistant messages ever added to the chat.
// It is never decremented, even if messages are later removed.
type Chat struct {
	ID        int64
	TaskID    int64
	SessionID string
	StepCount int
	IsActive  bool
	Context   map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionInfo is the read-only projection of a chat returned to callers.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	TaskID       string    `json:"task_id"`
	StepCount    int       `json:"step_count"`
	IsActive     bool      `json:"is_active"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionSummary is a single entry in a task's session listing.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	StepCount int       `json:"step_count"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
