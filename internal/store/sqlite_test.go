package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/symbiote-ai/symbiote/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return st
}

func createTestTask(t *testing.T, st *SQLiteStore) *domain.Task {
	t.Helper()

	task := &domain.Task{Title: "test task"}
	if err := st.Tasks.Create(context.Background(), st.db, task); err != nil {
		t.Fatalf("Tasks.Create() error = %v", err)
	}
	return task
}

func createTestChat(t *testing.T, st *SQLiteStore, taskID int64) *domain.Chat {
	t.Helper()

	chat := &domain.Chat{TaskID: taskID}
	if err := st.Chats.Create(context.Background(), st.db, chat); err != nil {
		t.Fatalf("Chats.Create() error = %v", err)
	}
	return chat
}

func TestTaskCreateDefaults(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	task := &domain.Task{
		Title:    "search the catalog",
		Metadata: map[string]any{"browser": "firefox"},
	}
	if err := st.Tasks.Create(ctx, st.db, task); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.ID == 0 {
		t.Error("Create() did not populate task ID")
	}
	if task.ExternalID == "" {
		t.Error("Create() did not generate an external ID")
	}
	if task.Status != domain.TaskStatusPending {
		t.Errorf("Status = %q, want %q", task.Status, domain.TaskStatusPending)
	}

	got, err := st.Tasks.GetByExternalID(ctx, st.db, task.ExternalID)
	if err != nil {
		t.Fatalf("GetByExternalID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByExternalID() = nil, want task")
	}
	if got.Title != task.Title {
		t.Errorf("Title = %q, want %q", got.Title, task.Title)
	}
	if got.Metadata["browser"] != "firefox" {
		t.Errorf("Metadata = %v, want browser=firefox", got.Metadata)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
	}
}

func TestTaskGetMissing(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	got, err := st.Tasks.GetByExternalID(ctx, st.db, "no-such-task")
	if err != nil {
		t.Fatalf("GetByExternalID() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetByExternalID() = %+v, want nil", got)
	}
}

func TestTaskUpdateStatus(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := createTestTask(t, st)

	if err := st.Tasks.UpdateStatus(ctx, st.db, task.ID, domain.TaskStatusInProgress); err != nil {
		t.Fatalf("UpdateStatus(in_progress) error = %v", err)
	}
	got, err := st.Tasks.GetByID(ctx, st.db, task.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.TaskStatusInProgress {
		t.Errorf("Status = %q, want %q", got.Status, domain.TaskStatusInProgress)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil before completion", got.CompletedAt)
	}

	if err := st.Tasks.UpdateStatus(ctx, st.db, task.ID, domain.TaskStatusCompleted); err != nil {
		t.Fatalf("UpdateStatus(completed) error = %v", err)
	}
	got, err = st.Tasks.GetByID(ctx, st.db, task.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt = nil, want timestamp after completion")
	}

	if err := st.Tasks.UpdateStatus(ctx, st.db, 99999, domain.TaskStatusFailed); err == nil {
		t.Error("UpdateStatus() on missing task, want error")
	}
}

func TestTaskList(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	older := &domain.Task{Title: "older", CreatedAt: time.Now().Add(-time.Hour)}
	if err := st.Tasks.Create(ctx, st.db, older); err != nil {
		t.Fatalf("Create(older) error = %v", err)
	}
	newer := &domain.Task{Title: "newer"}
	if err := st.Tasks.Create(ctx, st.db, newer); err != nil {
		t.Fatalf("Create(newer) error = %v", err)
	}

	tasks, err := st.Tasks.List(ctx, st.db)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("List() returned %d tasks, want 2", len(tasks))
	}
	if tasks[0].Title != "newer" || tasks[1].Title != "older" {
		t.Errorf("List() order = [%q, %q], want newest first", tasks[0].Title, tasks[1].Title)
	}
}

func TestChatCreateDefaults(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := createTestTask(t, st)

	chat := &domain.Chat{TaskID: task.ID, Context: map[string]any{"viewport": "1920x1080"}}
	if err := st.Chats.Create(ctx, st.db, chat); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if chat.SessionID == "" {
		t.Error("Create() did not generate a session ID")
	}

	got, err := st.Chats.GetBySessionID(ctx, st.db, chat.SessionID)
	if err != nil {
		t.Fatalf("GetBySessionID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetBySessionID() = nil, want chat")
	}
	if got.StepCount != 0 {
		t.Errorf("StepCount = %d, want 0", got.StepCount)
	}
	if !got.IsActive {
		t.Error("IsActive = false, want true")
	}
	if got.Context["viewport"] != "1920x1080" {
		t.Errorf("Context = %v, want viewport=1920x1080", got.Context)
	}
}

func TestChatIncrementStepCount(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := createTestTask(t, st)
	chat := createTestChat(t, st, task.ID)

	for i := 0; i < 3; i++ {
		if err := st.Chats.IncrementStepCount(ctx, st.db, chat.ID); err != nil {
			t.Fatalf("IncrementStepCount() error = %v", err)
		}
	}

	got, err := st.Chats.GetByID(ctx, st.db, chat.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.StepCount != 3 {
		t.Errorf("StepCount = %d, want 3", got.StepCount)
	}

	if err := st.Chats.IncrementStepCount(ctx, st.db, 99999); err == nil {
		t.Error("IncrementStepCount() on missing chat, want error")
	}
}

func TestChatDeactivate(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := createTestTask(t, st)
	chat := createTestChat(t, st, task.ID)

	if err := st.Chats.Deactivate(ctx, st.db, chat.ID); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	got, err := st.Chats.GetByID(ctx, st.db, chat.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.IsActive {
		t.Error("IsActive = true after Deactivate(), want false")
	}
}

func TestMessageOrderingPreservesInsertionOnTies(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := createTestTask(t, st)
	chat := createTestChat(t, st, task.ID)

	// Same creation timestamp on purpose: ordering must fall back to the
	// row key, i.e. insertion order.
	stamp := time.Now()
	contents := []string{"first", "second", "third"}
	for _, content := range contents {
		msg := &domain.Message{ChatID: chat.ID, Role: domain.RoleUser, Content: content, CreatedAt: stamp}
		if err := st.Messages.Create(ctx, st.db, msg); err != nil {
			t.Fatalf("Create(%q) error = %v", content, err)
		}
	}

	msgs, err := st.Messages.ListByChat(ctx, st.db, chat.ID)
	if err != nil {
		t.Fatalf("ListByChat() error = %v", err)
	}
	if len(msgs) != len(contents) {
		t.Fatalf("ListByChat() returned %d messages, want %d", len(msgs), len(contents))
	}
	for i, want := range contents {
		if msgs[i].Content != want {
			t.Errorf("messages[%d].Content = %q, want %q", i, msgs[i].Content, want)
		}
	}
}

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := createTestTask(t, st)
	chat := createTestChat(t, st, task.ID)

	confidence := 0.85
	msg := &domain.Message{
		ChatID:     chat.ID,
		Role:       domain.RoleAssistant,
		Content:    `{"action_type":"click"}`,
		ImageRefs:  []string{"/tmp/shot-1.png"},
		ActionData: map[string]any{"action_type": "click"},
		Confidence: &confidence,
	}
	if err := st.Messages.Create(ctx, st.db, msg); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := st.Messages.GetByID(ctx, st.db, msg.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByID() = nil, want message")
	}
	if got.Role != domain.RoleAssistant {
		t.Errorf("Role = %q, want %q", got.Role, domain.RoleAssistant)
	}
	if len(got.ImageRefs) != 1 || got.ImageRefs[0] != "/tmp/shot-1.png" {
		t.Errorf("ImageRefs = %v, want [/tmp/shot-1.png]", got.ImageRefs)
	}
	if got.ActionData["action_type"] != "click" {
		t.Errorf("ActionData = %v, want action_type=click", got.ActionData)
	}
	if got.Confidence == nil || *got.Confidence != confidence {
		t.Errorf("Confidence = %v, want %v", got.Confidence, confidence)
	}

	count, err := st.Messages.CountByChat(ctx, st.db, chat.ID)
	if err != nil {
		t.Fatalf("CountByChat() error = %v", err)
	}
	if count != 1 {
		t.Errorf("CountByChat() = %d, want 1", count)
	}
}

func TestAgentGetOrCreateIdempotent(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.Agents.GetOrCreate(ctx, st.db, domain.AgentTypeVision, "llava")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	second, err := st.Agents.GetOrCreate(ctx, st.db, domain.AgentTypeVision, "llava:13b")
	if err != nil {
		t.Fatalf("GetOrCreate() second call error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("GetOrCreate() returned IDs %d and %d, want the same row", first.ID, second.ID)
	}
	// First registration wins.
	if second.ModelName != "llava" {
		t.Errorf("ModelName = %q, want %q", second.ModelName, "llava")
	}
	if first.Name != "vision-agent" {
		t.Errorf("Name = %q, want %q", first.Name, "vision-agent")
	}
}

func TestAgentGetOrCreateConcurrent(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]int64, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = st.WithTx(ctx, func(q Querier) error {
				agent, err := st.Agents.GetOrCreate(ctx, q, domain.AgentTypeText, "deepseek-r1")
				if err != nil {
					return err
				}
				ids[i] = agent.ID
				return nil
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Errorf("worker %d got agent ID %d, want %d", i, ids[i], ids[0])
		}
	}
}

func TestActionLogOutcome(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := createTestTask(t, st)
	chat := createTestChat(t, st, task.ID)

	msg := &domain.Message{ChatID: chat.ID, Role: domain.RoleAssistant, Content: "reply"}
	if err := st.Messages.Create(ctx, st.db, msg); err != nil {
		t.Fatalf("Messages.Create() error = %v", err)
	}

	x, y := 120.0, 340.5
	log := &domain.ActionLog{
		MessageID:          msg.ID,
		ActionType:         "click",
		ElementDescription: "search button",
		CoordX:             &x,
		CoordY:             &y,
		Confidence:         0.9,
	}
	if err := st.ActionLogs.Create(ctx, st.db, log); err != nil {
		t.Fatalf("ActionLogs.Create() error = %v", err)
	}

	logs, err := st.ActionLogs.ListByMessage(ctx, st.db, msg.ID)
	if err != nil {
		t.Fatalf("ListByMessage() error = %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("ListByMessage() returned %d logs, want 1", len(logs))
	}
	if logs[0].Resolved() {
		t.Error("Resolved() = true before RecordOutcome()")
	}
	if logs[0].CoordX == nil || *logs[0].CoordX != x {
		t.Errorf("CoordX = %v, want %v", logs[0].CoordX, x)
	}

	if err := st.ActionLogs.RecordOutcome(ctx, st.db, log.ID, false, "element not found"); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}
	logs, err = st.ActionLogs.ListByMessage(ctx, st.db, msg.ID)
	if err != nil {
		t.Fatalf("ListByMessage() after outcome error = %v", err)
	}
	if !logs[0].Resolved() {
		t.Error("Resolved() = false after RecordOutcome()")
	}
	if logs[0].Success == nil || *logs[0].Success {
		t.Errorf("Success = %v, want false", logs[0].Success)
	}
	if logs[0].Error != "element not found" {
		t.Errorf("Error = %q, want %q", logs[0].Error, "element not found")
	}

	if err := st.ActionLogs.RecordOutcome(ctx, st.db, 99999, true, ""); err == nil {
		t.Error("RecordOutcome() on missing log, want error")
	}
}

func TestTaskDeleteCascades(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := createTestTask(t, st)
	chat := createTestChat(t, st, task.ID)

	msg := &domain.Message{ChatID: chat.ID, Role: domain.RoleAssistant, Content: "reply"}
	if err := st.Messages.Create(ctx, st.db, msg); err != nil {
		t.Fatalf("Messages.Create() error = %v", err)
	}
	log := &domain.ActionLog{MessageID: msg.ID, ActionType: "click", ElementDescription: "link", Confidence: 1}
	if err := st.ActionLogs.Create(ctx, st.db, log); err != nil {
		t.Fatalf("ActionLogs.Create() error = %v", err)
	}

	if err := st.Tasks.Delete(ctx, st.db, task.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if got, err := st.Tasks.GetByID(ctx, st.db, task.ID); err != nil || got != nil {
		t.Errorf("task after delete = (%+v, %v), want (nil, nil)", got, err)
	}
	if got, err := st.Chats.GetBySessionID(ctx, st.db, chat.SessionID); err != nil || got != nil {
		t.Errorf("chat after delete = (%+v, %v), want (nil, nil)", got, err)
	}
	if got, err := st.Messages.GetByID(ctx, st.db, msg.ID); err != nil || got != nil {
		t.Errorf("message after delete = (%+v, %v), want (nil, nil)", got, err)
	}
	logs, err := st.ActionLogs.ListByMessage(ctx, st.db, msg.ID)
	if err != nil {
		t.Fatalf("ListByMessage() after delete error = %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("action logs after delete = %d, want 0", len(logs))
	}
}

func TestChatDeleteCascades(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := createTestTask(t, st)
	chat := createTestChat(t, st, task.ID)
	sibling := createTestChat(t, st, task.ID)

	msg := &domain.Message{ChatID: chat.ID, Role: domain.RoleAssistant, Content: "reply"}
	if err := st.Messages.Create(ctx, st.db, msg); err != nil {
		t.Fatalf("Messages.Create() error = %v", err)
	}
	log := &domain.ActionLog{MessageID: msg.ID, ActionType: "click", ElementDescription: "link", Confidence: 1}
	if err := st.ActionLogs.Create(ctx, st.db, log); err != nil {
		t.Fatalf("ActionLogs.Create() error = %v", err)
	}

	if err := st.Chats.Delete(ctx, st.db, chat.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if got, err := st.Chats.GetByID(ctx, st.db, chat.ID); err != nil || got != nil {
		t.Errorf("chat after delete = (%+v, %v), want (nil, nil)", got, err)
	}
	if got, err := st.Messages.GetByID(ctx, st.db, msg.ID); err != nil || got != nil {
		t.Errorf("message after delete = (%+v, %v), want (nil, nil)", got, err)
	}
	logs, err := st.ActionLogs.ListByMessage(ctx, st.db, msg.ID)
	if err != nil {
		t.Fatalf("ListByMessage() after delete error = %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("action logs after delete = %d, want 0", len(logs))
	}

	// The owning task and its other chats survive.
	if got, err := st.Tasks.GetByID(ctx, st.db, task.ID); err != nil || got == nil {
		t.Errorf("task after chat delete = (%+v, %v), want the task", got, err)
	}
	if got, err := st.Chats.GetByID(ctx, st.db, sibling.ID); err != nil || got == nil {
		t.Errorf("sibling chat after delete = (%+v, %v), want the chat", got, err)
	}
}

func TestMessageDeleteRemovesActionLogs(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := createTestTask(t, st)
	chat := createTestChat(t, st, task.ID)

	msg := &domain.Message{ChatID: chat.ID, Role: domain.RoleAssistant, Content: "reply"}
	if err := st.Messages.Create(ctx, st.db, msg); err != nil {
		t.Fatalf("Messages.Create() error = %v", err)
	}
	if err := st.Chats.IncrementStepCount(ctx, st.db, chat.ID); err != nil {
		t.Fatalf("IncrementStepCount() error = %v", err)
	}
	other := &domain.Message{ChatID: chat.ID, Role: domain.RoleUser, Content: "question"}
	if err := st.Messages.Create(ctx, st.db, other); err != nil {
		t.Fatalf("Messages.Create(other) error = %v", err)
	}
	log := &domain.ActionLog{MessageID: msg.ID, ActionType: "type", ElementDescription: "search box", Confidence: 0.8}
	if err := st.ActionLogs.Create(ctx, st.db, log); err != nil {
		t.Fatalf("ActionLogs.Create() error = %v", err)
	}

	if err := st.Messages.Delete(ctx, st.db, msg.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if got, err := st.Messages.GetByID(ctx, st.db, msg.ID); err != nil || got != nil {
		t.Errorf("message after delete = (%+v, %v), want (nil, nil)", got, err)
	}
	logs, err := st.ActionLogs.ListByMessage(ctx, st.db, msg.ID)
	if err != nil {
		t.Fatalf("ListByMessage() after delete error = %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("action logs after delete = %d, want 0", len(logs))
	}
	if got, err := st.Messages.GetByID(ctx, st.db, other.ID); err != nil || got == nil {
		t.Errorf("other message after delete = (%+v, %v), want the message", got, err)
	}

	// step_count counts assistant messages ever added; deletion leaves it.
	got, err := st.Chats.GetByID(ctx, st.db, chat.ID)
	if err != nil {
		t.Fatalf("Chats.GetByID() error = %v", err)
	}
	if got.StepCount != 1 {
		t.Errorf("StepCount = %d after message delete, want 1", got.StepCount)
	}
}

func TestAgentGetByID(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.Agents.GetOrCreate(ctx, st.db, domain.AgentTypeText, "deepseek-r1")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	got, err := st.Agents.GetByID(ctx, st.db, created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByID() = nil, want agent")
	}
	if got.AgentType != domain.AgentTypeText || got.ModelName != "deepseek-r1" {
		t.Errorf("GetByID() = (%q, %q), want (%q, %q)", got.AgentType, got.ModelName, domain.AgentTypeText, "deepseek-r1")
	}

	missing, err := st.Agents.GetByID(ctx, st.db, 99999)
	if err != nil {
		t.Fatalf("GetByID() on missing agent error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetByID() on missing agent = %+v, want nil", missing)
	}
}

func TestNewSQLiteUnusableFile(t *testing.T) {
	t.Parallel()

	// A directory at the database path makes the first connection fail, so
	// NewSQLite must return an error instead of a store.
	st, err := NewSQLite(t.TempDir())
	if err == nil {
		if closeErr := st.Close(); closeErr != nil {
			t.Logf("Close() error = %v", closeErr)
		}
		t.Fatal("NewSQLite() on a directory path, want error")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	task := createTestTask(t, st)

	wantErr := errors.New("boom")
	err := st.WithTx(ctx, func(q Querier) error {
		if err := st.Chats.Create(ctx, q, &domain.Chat{TaskID: task.ID, SessionID: "doomed"}); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithTx() error = %v, want %v", err, wantErr)
	}

	got, err := st.Chats.GetBySessionID(ctx, st.db, "doomed")
	if err != nil {
		t.Fatalf("GetBySessionID() error = %v", err)
	}
	if got != nil {
		t.Error("chat survived a rolled-back transaction")
	}
}
