// Package domain contains core domain types for Symbiote session management.
package domain

import (
	"time"
)

// TaskStatus enumerates the lifecycle states of a testing task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Task is a named unit of testing work. A task owns zero or more chats;
// deleting a task deletes its chats and their messages.
//
// ExternalID is the only task identifier exposed outside the storage
// boundary. ID is the internal row key and never leaves the store/session
// layers.
type Task struct {
	ID          int64
	ExternalID  string
	Title       string
	Description string
	WebsiteURL  string
	Status      TaskStatus
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// IsTerminal reports whether the task has reached a final status.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}
