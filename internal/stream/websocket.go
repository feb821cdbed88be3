package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/symbiote-ai/symbiote/internal/session"
)

// WebSocketHandler upgrades GET /ws/sessions/{sessionID} and forwards hub
// events as JSON frames until the client disconnects.
type WebSocketHandler struct {
	hub      *Hub
	sessions *session.Manager
}

// NewWebSocketHandler creates a websocket handler over the hub.
func NewWebSocketHandler(hub *Hub, sessions *session.Manager) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, sessions: sessions}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	exists, err := h.sessions.SessionExists(r.Context(), sessionID)
	if err != nil {
		slog.Error("failed to check session before upgrade", "session_id", sessionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept websocket", "session_id", sessionID, "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "session_id", sessionID, "error", closeErr)
		}
	}()

	slog.Info("session stream connected", "session_id", sessionID)

	sub := h.hub.Subscribe(sessionID, 32)
	defer h.hub.Unsubscribe(sessionID, sub)

	// The feed is one-way; CloseRead surfaces client disconnect through
	// context cancellation.
	ctx := ws.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(ctx, ws, event); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("websocket write failed", "session_id", sessionID, "error", err)
				}
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, ws *websocket.Conn, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
