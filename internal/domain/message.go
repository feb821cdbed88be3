package domain

import (
	"time"
)

// MessageRole enumerates the sender role of a message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Valid reports whether r is a known message role.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one turn in a chat. Role and content are immutable once
// created. AgentID is set only for assistant messages.
//
// Messages are ordered by creation time; ties preserve insertion order via
// the row key. This ordering is the contract for context reconstruction.
type Message struct {
	ID         int64
	ChatID     int64
	Role       MessageRole
	AgentID    *int64
	Content    string
	ImageRefs  []string
	ActionData map[string]any
	Confidence *float64
	CreatedAt  time.Time
}

// ContextMessage is one entry in the role/content sequence fed to a model
// call. Image refs are carried through unmodified for vision-capable agents.
type ContextMessage struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	ImageRefs []string    `json:"images,omitempty"`
}
