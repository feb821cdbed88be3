// Package agent implements the model-backed testing agents. Each agent
// materializes its conversation context through the session manager, calls
// the model-serving endpoint, and persists the reply back. The agents
// themselves hold no conversation state.
package agent

import (
	"encoding/json"
	"fmt"
)

// ChatMessage is one entry in the messages payload sent to the model
// endpoint. Images carries base64-encoded payloads for vision models.
type ChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// TestAction is one concrete UI action proposed by a model.
type TestAction struct {
	ActionType         string    `json:"action_type"`
	ElementDescription string    `json:"element_description"`
	Coordinates        []float64 `json:"coordinates,omitempty"`
	TextInput          string    `json:"text_input,omitempty"`
	Confidence         float64   `json:"confidence"`
}

// ParseActions decodes a model reply into test actions. Models return
// either a single action object or an array of them; both are accepted.
// A reply that is valid JSON but neither shape yields no actions rather
// than an error, since callers still persist the raw reply.
func ParseActions(raw string) ([]TestAction, error) {
	var single TestAction
	if err := json.Unmarshal([]byte(raw), &single); err == nil {
		if single.ActionType == "" {
			return nil, nil
		}
		normalizeAction(&single)
		return []TestAction{single}, nil
	}

	var many []TestAction
	if err := json.Unmarshal([]byte(raw), &many); err != nil {
		return nil, fmt.Errorf("parse actions: %w", err)
	}
	out := many[:0]
	for _, action := range many {
		if action.ActionType == "" {
			continue
		}
		normalizeAction(&action)
		out = append(out, action)
	}
	return out, nil
}

func normalizeAction(a *TestAction) {
	if a.Confidence == 0 {
		a.Confidence = 1.0
	}
	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 1 {
		a.Confidence = 1
	}
}
