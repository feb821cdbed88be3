package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/symbiote-ai/symbiote/internal/domain"
	"github.com/symbiote-ai/symbiote/internal/session"
)

// GetSession returns the read-only session projection.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.sessions.GetSessionInfo(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, info)
}

type addMessageRequest struct {
	Role       domain.MessageRole `json:"role"`
	Content    string             `json:"content"`
	ImageRefs  []string           `json:"image_refs,omitempty"`
	AgentType  domain.AgentType   `json:"agent_type,omitempty"`
	ModelName  string             `json:"model_name,omitempty"`
	ActionData map[string]any     `json:"action_data,omitempty"`
	Confidence *float64           `json:"confidence,omitempty"`
}

// AddMessage appends one message to the session. Assistant messages carry
// the agent type and model name and bump the session's step count.
func (h *Handler) AddMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req addMessageRequest
	if !decode(w, r, &req) {
		return
	}

	var msgID int64
	var err error
	switch req.Role {
	case domain.RoleSystem:
		msgID, err = h.sessions.AddSystemMessage(r.Context(), sessionID, req.Content)
	case domain.RoleUser:
		msgID, err = h.sessions.AddUserMessage(r.Context(), sessionID, req.Content, req.ImageRefs)
	case domain.RoleAssistant:
		msgID, err = h.sessions.AddAssistantMessage(r.Context(), sessionID, req.Content, req.AgentType, req.ModelName, &session.AssistantOptions{
			ActionData: req.ActionData,
			Confidence: req.Confidence,
		})
	default:
		Error(w, http.StatusBadRequest, "unknown message role")
		return
	}
	if err != nil {
		fail(w, err)
		return
	}

	JSON(w, http.StatusCreated, map[string]any{"message_id": msgID})
}

// GetContext returns the session's ordered role/content sequence. Pass
// include_system=false to filter system messages out.
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	includeSystem := true
	if v := r.URL.Query().Get("include_system"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid include_system value")
			return
		}
		includeSystem = parsed
	}

	context, err := h.sessions.GetContext(r.Context(), chi.URLParam(r, "sessionID"), includeSystem)
	if err != nil {
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"messages": context})
}

// DeactivateSession marks the session inactive.
func (h *Handler) DeactivateSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.DeactivateSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// DeleteSession removes the session with its messages and action logs. The
// owning task survives.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// DeleteMessage removes a single message and its action logs. The session's
// step count is untouched.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid message id")
		return
	}

	if err := h.sessions.DeleteMessage(r.Context(), messageID); err != nil {
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
