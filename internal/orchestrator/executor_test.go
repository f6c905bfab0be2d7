package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ShayCichocki/gala/internal/api"
	"github.com/ShayCichocki/gala/internal/conversation"
	"github.com/ShayCichocki/gala/internal/files"
	"github.com/ShayCichocki/gala/internal/state"
	"github.com/ShayCichocki/gala/internal/tools"
	"github.com/ShayCichocki/gala/pkg/models"
)

type executorFixture struct {
	db    *state.DB
	gw    *scriptedGateway
	exec  *Executor
	run   *models.Run
	event *models.Event
	tasks []models.Task
}

func newExecutorFixture(t *testing.T, gw *scriptedGateway, opts ...Option) *executorFixture {
	t.Helper()
	db := newTestStore(t)
	event := seedEvent(t, db, "evt-1",
		agentTask("t1", models.PriorityHigh),
		agentTask("t2", models.PriorityLow),
	)
	run := seedRun(t, db, "evt-1")

	o := defaultOptions()
	o.now = testClock
	for _, opt := range opts {
		opt(&o)
	}
	cache, err := conversation.NewCache(8, HistoryLoader(db))
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	exec, err := NewExecutor(db, gw, cache, o)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	tasks, err := db.ListTasksByEvent("evt-1")
	if err != nil {
		t.Fatalf("ListTasksByEvent: %v", err)
	}
	return &executorFixture{db: db, gw: gw, exec: exec, run: run, event: event, tasks: tasks}
}

func (f *executorFixture) execute(t *testing.T, id string) (Outcome, *models.Task) {
	t.Helper()
	task := mustTask(t, f.db, id)
	outcome := f.exec.Execute(context.Background(), f.run, f.event, task, f.tasks)
	return outcome, mustTask(t, f.db, id)
}

func TestExecute_CompleteIsIdempotentOnProgress(t *testing.T) {
	gw := newScriptedGateway(
		reply(toolUse(call("c1", tools.UpdateTaskProgress, map[string]any{"progress": "drafted list", "percentage": 40}))),
		reply(toolUse(call("c2", tools.MarkTaskComplete, map[string]any{"summary": "Guest list ready"}))),
	)
	f := newExecutorFixture(t, gw)

	outcome, task := f.execute(t, "t1")
	if outcome != OutcomeComplete {
		t.Fatalf("outcome = %s, want complete", outcome)
	}
	if task.Status != models.TaskStatusDone || task.Progress != 100 {
		t.Errorf("task = %s/%d, want done/100", task.Status, task.Progress)
	}
	if task.Summary != "Guest list ready" || task.CompletedAt == nil {
		t.Errorf("summary = %q completed_at = %v", task.Summary, task.CompletedAt)
	}

	notes, err := f.db.ListNotificationsByEvent("evt-1", false)
	if err != nil {
		t.Fatalf("ListNotificationsByEvent: %v", err)
	}
	if len(notes) != 1 || notes[0].Type != models.NotificationCompletion {
		t.Errorf("notifications = %+v, want one completion", notes)
	}
}

func TestExecute_RequestUserInputShortCircuitsBatch(t *testing.T) {
	gw := newScriptedGateway(reply(toolUse(
		call("ask-1", tools.RequestUserInput, map[string]any{
			"question":    "What is the catering budget?",
			"context":     "Vendors need a per-head figure.",
			"suggestions": []string{"$40", "$60"},
		}),
		call("done-1", tools.MarkTaskComplete, map[string]any{"summary": "should not run"}),
	)))
	f := newExecutorFixture(t, gw)

	outcome, task := f.execute(t, "t1")
	if outcome != OutcomeBlocked {
		t.Fatalf("outcome = %s, want blocked", outcome)
	}
	if task.Status != models.TaskStatusBlocked {
		t.Errorf("status = %s, want blocked", task.Status)
	}
	if !strings.Contains(task.ProgressText, "catering budget") {
		t.Errorf("progress text = %q", task.ProgressText)
	}
	if gw.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", gw.Calls())
	}

	notes, err := f.db.ListNotificationsByEvent("evt-1", true)
	if err != nil {
		t.Fatalf("ListNotificationsByEvent: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notes))
	}
	n := notes[0]
	if n.Type != models.NotificationInputNeeded || n.ToolCallID != "ask-1" || n.TaskID != "t1" || n.RunID != f.run.ID {
		t.Errorf("notification = %+v", n)
	}
	if len(n.Suggestions) != 2 || n.Context == "" {
		t.Errorf("suggestions/context not carried: %+v", n)
	}

	h, err := f.exec.cache.Get("t1")
	if err != nil {
		t.Fatalf("cache.Get: %v", err)
	}
	if len(h.Unanswered()) != 2 {
		t.Errorf("unanswered calls = %d, want both left open", len(h.Unanswered()))
	}
}

func TestExecute_EmptyQuestionIsToolError(t *testing.T) {
	gw := newScriptedGateway(
		reply(toolUse(call("ask-1", tools.RequestUserInput, map[string]any{"question": "  "}))),
	)
	f := newExecutorFixture(t, gw)

	outcome, task := f.execute(t, "t1")
	if outcome != OutcomeComplete || task.Status != models.TaskStatusDone {
		t.Fatalf("outcome = %s status = %s", outcome, task.Status)
	}

	msgs, err := f.db.ListMessagesByTask("t1")
	if err != nil {
		t.Fatalf("ListMessagesByTask: %v", err)
	}
	var found bool
	for _, m := range msgs {
		if m.Role == models.RoleToolResult && m.ToolCallID == "ask-1" && m.IsError {
			found = true
		}
	}
	if !found {
		t.Error("empty question did not produce an error tool result")
	}
}

func TestExecute_RoundBound(t *testing.T) {
	progress := reply(toolUse(call("p", tools.UpdateTaskProgress, map[string]any{"progress": "still working"})))
	gw := newScriptedGateway(progress, progress, progress, progress, progress)
	f := newExecutorFixture(t, gw, WithMaxRounds(3))

	outcome, task := f.execute(t, "t1")
	if outcome != OutcomeContinue {
		t.Fatalf("outcome = %s, want continue", outcome)
	}
	if gw.Calls() != 3 {
		t.Errorf("model calls = %d, want 3", gw.Calls())
	}
	if task.Status != models.TaskStatusInProgress || task.ProgressText != "still working" {
		t.Errorf("task = %s %q", task.Status, task.ProgressText)
	}
}

func TestExecute_EndTurnYields(t *testing.T) {
	gw := newScriptedGateway(reply(&api.Response{Text: "Let me think about vendors.", StopReason: api.StopEndTurn}))
	f := newExecutorFixture(t, gw)

	outcome, _ := f.execute(t, "t1")
	if outcome != OutcomeContinue || gw.Calls() != 1 {
		t.Fatalf("outcome = %s calls = %d", outcome, gw.Calls())
	}

	// The next invocation nudges the model instead of replaying its prose.
	outcome, _ = f.execute(t, "t1")
	if outcome != OutcomeComplete {
		t.Fatalf("second outcome = %s", outcome)
	}
	last, ok := gw.History(1).Last().(conversation.TextTurn)
	if !ok || last.Role != conversation.RoleUser || !strings.Contains(last.Text, "continue") {
		t.Errorf("second call ended with %#v, want continue nudge", gw.History(1).Last())
	}
}

func TestExecute_ModelErrorContinues(t *testing.T) {
	gw := newScriptedGateway(fail(errors.New("anthropic: 529 overloaded")))
	rec := &recorder{}
	f := newExecutorFixture(t, gw, WithObserver(rec.observer()))

	outcome, task := f.execute(t, "t1")
	if outcome != OutcomeContinue {
		t.Fatalf("outcome = %s, want continue", outcome)
	}
	if task.Status == models.TaskStatusDone {
		t.Error("task completed despite model error")
	}

	msgs, err := f.db.ListMessagesByTask("t1")
	if err != nil {
		t.Fatalf("ListMessagesByTask: %v", err)
	}
	var sys *models.Message
	for i := range msgs {
		if msgs[i].Role == models.RoleSystem {
			sys = &msgs[i]
		}
	}
	if sys == nil || !sys.IsError || !strings.Contains(sys.Content, "overloaded") {
		t.Fatalf("system error message = %+v", sys)
	}
	if rec.count(EventChatMessage) == 0 {
		t.Error("model error was not surfaced as a chat message")
	}
}

func TestExecute_UnknownToolFeedsErrorBack(t *testing.T) {
	gw := newScriptedGateway(
		reply(toolUse(call("v1", "book_venue", map[string]any{"venue": "Pier 9"}))),
		func(_ string, h conversation.History) (*api.Response, error) {
			batch, ok := h.Last().(conversation.ToolResultBatch)
			if !ok || len(batch.Results) != 1 || !batch.Results[0].IsError {
				return nil, errors.New("expected one error result")
			}
			if !strings.Contains(batch.Results[0].Content, "unknown tool: book_venue") {
				return nil, errors.New("unexpected result: " + batch.Results[0].Content)
			}
			return toolUse(call("c", tools.MarkTaskComplete, nil)), nil
		},
	)
	f := newExecutorFixture(t, gw)

	outcome, _ := f.execute(t, "t1")
	if outcome != OutcomeComplete {
		t.Fatalf("outcome = %s, want complete", outcome)
	}
}

func TestExecute_WriteEventFile(t *testing.T) {
	dir := t.TempDir()
	gw := newScriptedGateway(
		reply(toolUse(call("w1", tools.WriteEventFile, map[string]any{"filename": "../Run of Show.md", "content": "18:00 doors"}))),
		func(_ string, h conversation.History) (*api.Response, error) {
			batch := h.Last().(conversation.ToolResultBatch)
			if batch.Results[0].IsError {
				return nil, errors.New(batch.Results[0].Content)
			}
			return toolUse(call("c", tools.MarkTaskComplete, nil)), nil
		},
	)
	disk := files.NewDiskWriter(dir)
	f := newExecutorFixture(t, gw, WithFiles(disk))

	if outcome, _ := f.execute(t, "t1"); outcome != OutcomeComplete {
		t.Fatalf("outcome = %s", outcome)
	}
	list, err := disk.List("evt-1")
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v, %v", list, err)
	}
	got, err := disk.Read("evt-1", list[0].Name)
	if err != nil || got != "18:00 doors" {
		t.Errorf("Read(%s) = %q, %v", list[0].Name, got, err)
	}
	if strings.Contains(list[0].Name, "/") || strings.HasPrefix(list[0].Name, ".") {
		t.Errorf("filename not sanitized: %q", list[0].Name)
	}
}

func TestExecute_WriteEventFileWithoutStorage(t *testing.T) {
	gw := newScriptedGateway(
		reply(toolUse(call("w1", tools.WriteEventFile, map[string]any{"filename": "notes.md", "content": "x"}))),
		func(_ string, h conversation.History) (*api.Response, error) {
			batch := h.Last().(conversation.ToolResultBatch)
			if !batch.Results[0].IsError || !strings.HasPrefix(batch.Results[0].Content, "Failed to write") {
				return nil, errors.New("expected a write failure result")
			}
			return toolUse(call("c", tools.MarkTaskComplete, nil)), nil
		},
	)
	f := newExecutorFixture(t, gw)
	if outcome, _ := f.execute(t, "t1"); outcome != OutcomeComplete {
		t.Fatalf("outcome = %s", outcome)
	}
}

func TestExecute_ClosesDanglingCalls(t *testing.T) {
	f := newExecutorFixture(t, newScriptedGateway())

	// Simulate a crash between an assistant turn and its results.
	calls, err := conversation.EncodeCalls([]conversation.ToolCall{call("lost-1", "search_venues", nil)})
	if err != nil {
		t.Fatalf("EncodeCalls: %v", err)
	}
	for _, m := range []models.Message{
		{ID: "m1", RunID: f.run.ID, TaskID: "t1", Role: models.RoleUser, Content: "Please begin", CreatedAt: testNow},
		{ID: "m2", RunID: f.run.ID, TaskID: "t1", Role: models.RoleAssistant, ToolName: "search_venues", ToolInput: calls, CreatedAt: testNow.Add(1)},
	} {
		m := m
		if err := f.db.InsertMessage(&m); err != nil {
			t.Fatalf("InsertMessage: %v", err)
		}
	}

	if outcome, _ := f.execute(t, "t1"); outcome != OutcomeComplete {
		t.Fatalf("outcome = %s", outcome)
	}
	h := f.gw.History(0)
	if len(h.Unanswered()) != 0 {
		t.Fatalf("history sent with dangling calls: %#v", h)
	}
	batch, ok := h.Last().(conversation.ToolResultBatch)
	if !ok || batch.Results[0].CallID != "lost-1" || !batch.Results[0].IsError {
		t.Errorf("last entry = %#v, want synthesized error result", h.Last())
	}
}

func TestExecute_OffersBuiltinsWithoutDispatcher(t *testing.T) {
	f := newExecutorFixture(t, newScriptedGateway())
	f.execute(t, "t1")
	f.gw.mu.Lock()
	specs := f.gw.specs[0]
	f.gw.mu.Unlock()
	if len(specs) != len(tools.BuiltinNames()) {
		t.Errorf("offered %d tools, want the %d built-ins", len(specs), len(tools.BuiltinNames()))
	}
}

func TestCheckBuiltins_RejectsMissingHandler(t *testing.T) {
	handlers := map[string]builtinHandler{tools.MarkTaskComplete: nil}
	if err := checkBuiltins(handlers); err == nil {
		t.Error("checkBuiltins accepted an incomplete table")
	}
}

func TestExecute_KeepsConcurrentTaskEdits(t *testing.T) {
	var f *executorFixture
	gw := newScriptedGateway(
		func(string, conversation.History) (*api.Response, error) {
			// The organizer edits the task while the model is thinking.
			edited := mustTask(t, f.db, "t1")
			edited.Document = "Venue shortlist: Pier 9, Boathouse"
			edited.Description = "Seated dinner for 150"
			if err := f.db.UpdateTask(edited); err != nil {
				return nil, err
			}
			return toolUse(call("p1", tools.UpdateTaskProgress, map[string]any{"progress": "called venues", "percentage": 30})), nil
		},
		reply(toolUse(call("c1", tools.MarkTaskComplete, map[string]any{"summary": "Pier 9 held"}))),
	)
	f = newExecutorFixture(t, gw)

	outcome, task := f.execute(t, "t1")
	if outcome != OutcomeComplete {
		t.Fatalf("outcome = %s, want complete", outcome)
	}
	if task.Document != "Venue shortlist: Pier 9, Boathouse" || task.Description != "Seated dinner for 150" {
		t.Errorf("concurrent edits lost: document=%q description=%q", task.Document, task.Description)
	}
	if task.Status != models.TaskStatusDone || task.Progress != 100 || task.Summary != "Pier 9 held" {
		t.Errorf("task = %s/%d/%q", task.Status, task.Progress, task.Summary)
	}
}

func TestExecute_OnlyTouchesSelectedTask(t *testing.T) {
	gw := newScriptedGateway(
		reply(toolUse(
			call("p1", tools.UpdateTaskProgress, map[string]any{"progress": "drafted", "percentage": 50}),
			call("w1", tools.WriteEventFile, map[string]any{"filename": "draft.md", "content": "x"}),
			call("x1", "book_caterer", map[string]any{"guests": 150}),
		)),
		reply(toolUse(
			call("p2", tools.UpdateTaskProgress, map[string]any{"progress": "final"}),
			call("c1", tools.MarkTaskComplete, map[string]any{"summary": "done"}),
		)),
	)
	f := newExecutorFixture(t, gw, WithFiles(files.NewDiskWriter(t.TempDir())))
	before, err := f.db.ListTasksByEvent("evt-1")
	if err != nil {
		t.Fatalf("ListTasksByEvent: %v", err)
	}

	if outcome, _ := f.execute(t, "t1"); outcome != OutcomeComplete {
		t.Fatalf("outcome = %s, want complete", outcome)
	}

	after, err := f.db.ListTasksByEvent("evt-1")
	if err != nil {
		t.Fatalf("ListTasksByEvent: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("task count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID == "t1" {
			continue
		}
		if !reflect.DeepEqual(before[i], after[i]) {
			t.Errorf("task %s changed:\nbefore %+v\nafter  %+v", before[i].ID, before[i], after[i])
		}
	}
}
