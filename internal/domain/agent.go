package domain

import (
	"time"
)

// AgentType enumerates the categories of model backends.
type AgentType string

const (
	// AgentTypeText is a text-only model that works from URLs and element
	// descriptions rather than screenshots.
	AgentTypeText AgentType = "text"
	// AgentTypeVision is an image-capable model that analyzes screenshots.
	AgentTypeVision AgentType = "vision"
	// AgentTypeReasoning is a chain-of-thought model used for planning.
	AgentTypeReasoning AgentType = "reasoning"
)

// Valid reports whether t is a known agent type.
func (t AgentType) Valid() bool {
	switch t {
	case AgentTypeText, AgentTypeVision, AgentTypeReasoning:
		return true
	}
	return false
}

// Agent is a de-duplicated descriptor of a model configuration. Agents are
// looked up by type and created on first use; they are referenced by
// assistant messages but never owned or deleted by this core.
type Agent struct {
	ID           int64
	AgentType    AgentType
	Name         string
	ModelName    string
	Capabilities map[string]any
	CreatedAt    time.Time
}

// AgentSummary describes one agent that produced messages for a task.
type AgentSummary struct {
	Name  string    `json:"name"`
	Type  AgentType `json:"type"`
	Model string    `json:"model"`
}
