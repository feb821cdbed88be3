package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/symbiote-ai/symbiote/internal/domain"
	"github.com/symbiote-ai/symbiote/internal/session"
)

// RegisterRoutes registers all session API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", h.CreateTask)
			r.Get("/", h.ListTasks)
			r.Get("/{taskID}", h.GetTask)
			r.Patch("/{taskID}/status", h.UpdateTaskStatus)
			r.Delete("/{taskID}", h.DeleteTask)
			r.Post("/{taskID}/sessions", h.CreateSession)
			r.Get("/{taskID}/sessions", h.ListSessions)
			r.Get("/{taskID}/agents", h.ListAgents)
		})
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/{sessionID}", h.GetSession)
			r.Delete("/{sessionID}", h.DeleteSession)
			r.Post("/{sessionID}/messages", h.AddMessage)
			r.Get("/{sessionID}/context", h.GetContext)
			r.Post("/{sessionID}/deactivate", h.DeactivateSession)
		})
		r.Delete("/messages/{messageID}", h.DeleteMessage)
	})
}

type createTaskRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	WebsiteURL  string         `json:"website_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CreateTask allocates a new task and returns its external ID.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decode(w, r, &req) {
		return
	}

	taskID, err := h.sessions.CreateTask(r.Context(), session.NewTask{
		Title:       req.Title,
		Description: req.Description,
		WebsiteURL:  req.WebsiteURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		fail(w, err)
		return
	}

	JSON(w, http.StatusCreated, map[string]string{"task_id": taskID})
}

// ListTasks returns all tasks, newest first.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.sessions.ListTasks(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// GetTask returns one task projection.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	info, err := h.sessions.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, info)
}

type updateStatusRequest struct {
	Status domain.TaskStatus `json:"status"`
}

// UpdateTaskStatus sets a task's status. An unknown task yields 404 via the
// manager's not-found signal rather than an error.
func (h *Handler) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decode(w, r, &req) {
		return
	}

	found, err := h.sessions.UpdateTaskStatus(r.Context(), chi.URLParam(r, "taskID"), req.Status)
	if err != nil {
		fail(w, err)
		return
	}
	if !found {
		Error(w, http.StatusNotFound, "task not found")
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

// DeleteTask removes a task and everything it owns.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.DeleteTask(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type createSessionRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// CreateSession creates a new chat bound to the task.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}

	sessionID, err := h.sessions.CreateSession(r.Context(), chi.URLParam(r, "taskID"), req.SessionID, req.Context)
	if err != nil {
		fail(w, err)
		return
	}

	JSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}

// ListSessions returns summaries of the task's sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListSessionsForTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// ListAgents returns the agents that have worked on the task.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.sessions.GetAgentsForTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"agents": agents})
}
