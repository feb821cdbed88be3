package agent

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/symbiote-ai/symbiote/internal/domain"
)

func TestVisionAgentGetAction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sessions := newTestSessions(t)

	if _, err := sessions.GetOrCreateSession(ctx, "sess-1", "task-1"); err != nil {
		t.Fatalf("GetOrCreateSession() error = %v", err)
	}

	imagePath := filepath.Join(t.TempDir(), "screenshot.png")
	imageData := []byte("fake png bytes")
	if err := os.WriteFile(imagePath, imageData, 0644); err != nil {
		t.Fatalf("write screenshot: %v", err)
	}

	reply := `[{"action_type":"click","element_description":"login button","confidence":0.95}]`
	var lastReq chatRequest
	srv := newModelServer(t, reply, &lastReq)

	agent := NewVisionAgent(NewClient(ClientConfig{BaseURL: srv.URL}, nil), sessions, "llava", nil)
	_, actions, err := agent.GetAction(ctx, "sess-1", imagePath, "log in")
	if err != nil {
		t.Fatalf("GetAction() error = %v", err)
	}
	if len(actions) != 1 || actions[0].ElementDescription != "login button" {
		t.Fatalf("actions = %+v, want one click on the login button", actions)
	}

	// Only the final user turn carries the base64 payload.
	if len(lastReq.Messages) != 2 {
		t.Fatalf("model context = %+v, want [system, user]", lastReq.Messages)
	}
	last := lastReq.Messages[len(lastReq.Messages)-1]
	wantB64 := base64.StdEncoding.EncodeToString(imageData)
	if len(last.Images) != 1 || last.Images[0] != wantB64 {
		t.Errorf("final turn images = %v, want the encoded screenshot", last.Images)
	}

	// The stored history keeps the path as an opaque ref, never the payload.
	history, err := sessions.GetContext(ctx, "sess-1", true)
	if err != nil {
		t.Fatalf("GetContext() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("persisted %d messages, want 3", len(history))
	}
	userTurn := history[1]
	if userTurn.Role != domain.RoleUser {
		t.Fatalf("history[1].Role = %q, want user", userTurn.Role)
	}
	if len(userTurn.ImageRefs) != 1 || userTurn.ImageRefs[0] != imagePath {
		t.Errorf("ImageRefs = %v, want [%s]", userTurn.ImageRefs, imagePath)
	}
}

func TestVisionAgentMissingScreenshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sessions := newTestSessions(t)

	if _, err := sessions.GetOrCreateSession(ctx, "sess-1", "task-1"); err != nil {
		t.Fatalf("GetOrCreateSession() error = %v", err)
	}

	var lastReq chatRequest
	srv := newModelServer(t, `[]`, &lastReq)
	agent := NewVisionAgent(NewClient(ClientConfig{BaseURL: srv.URL}, nil), sessions, "llava", nil)

	if _, _, err := agent.GetAction(ctx, "sess-1", "/does/not/exist.png", "look"); err == nil {
		t.Fatal("GetAction() error = nil, want read failure")
	}

	// Nothing was persisted for the failed call.
	history, err := sessions.GetContext(ctx, "sess-1", true)
	if err != nil {
		t.Fatalf("GetContext() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("persisted %d messages after failed call, want 0", len(history))
	}
}
