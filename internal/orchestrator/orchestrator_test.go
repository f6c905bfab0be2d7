package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ShayCichocki/gala/internal/api"
	"github.com/ShayCichocki/gala/internal/conversation"
	apperrors "github.com/ShayCichocki/gala/internal/errors"
	"github.com/ShayCichocki/gala/internal/files"
	"github.com/ShayCichocki/gala/internal/tools"
	"github.com/ShayCichocki/gala/pkg/models"
)

func askBudget(id string) step {
	return reply(toolUse(call(id, tools.RequestUserInput, map[string]any{"question": "What is the budget?"})))
}

// expectAnswer checks that the history ends with the organizer's answer to
// callID, then completes the task.
func expectAnswer(callID, answer string) step {
	return func(_ string, h conversation.History) (*api.Response, error) {
		batch, ok := h.Last().(conversation.ToolResultBatch)
		if !ok {
			return nil, errors.New("history does not end with tool results")
		}
		for _, r := range batch.Results {
			if r.CallID == conversation.ToolCallID(callID) && r.Content == answer && !r.IsError {
				return toolUse(call("done-"+callID, tools.MarkTaskComplete, map[string]any{"summary": "Budget " + answer})), nil
			}
		}
		return nil, errors.New("answer not found in last result batch")
	}
}

func TestStart_WithoutGatewayCreatesNoRun(t *testing.T) {
	db := newTestStore(t)
	seedEvent(t, db, "evt-1", agentTask("t1", models.PriorityMedium))

	o, err := New(db, nil, "evt-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(context.Background()); !errors.Is(err, apperrors.ErrGatewayNotConfigured) {
		t.Fatalf("Start error = %v, want ErrGatewayNotConfigured", err)
	}
	runs, err := db.ListRunsByEvent("evt-1")
	if err != nil {
		t.Fatalf("ListRunsByEvent: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("got %d runs, want none", len(runs))
	}
	if o.State() != StateIdle {
		t.Errorf("state = %s, want idle", o.State())
	}
}

func TestStart_UnknownEvent(t *testing.T) {
	db := newTestStore(t)
	o, err := New(db, newScriptedGateway(), "missing")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(context.Background()); err == nil {
		t.Fatal("Start on a missing event succeeded")
	}
}

func TestRun_CompletesEveryTask(t *testing.T) {
	db := newTestStore(t)
	setup := agentTask("setup", models.PriorityLow)
	invites := agentTask("invites", models.PriorityHigh)
	invites.Dependencies = []string{"setup"}
	seedEvent(t, db, "evt-1", setup, invites)

	rec := &recorder{}
	gw := newScriptedGateway()
	o, err := New(db, gw, "evt-1", WithClock(testClock), WithObserver(rec.observer()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if o.State() != StateCompleted {
		t.Fatalf("state = %s, want completed", o.State())
	}
	for _, id := range []string{"setup", "invites"} {
		if task := mustTask(t, db, id); task.Status != models.TaskStatusDone || task.Progress != 100 {
			t.Errorf("%s = %s/%d, want done/100", id, task.Status, task.Progress)
		}
	}
	if gw.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", gw.Calls())
	}

	run, err := db.LatestRun("evt-1")
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if run.Status != models.RunStatusCompleted || run.CompletedAt == nil {
		t.Errorf("run = %s completed_at=%v", run.Status, run.CompletedAt)
	}

	snap := o.Status()
	if snap.DoneCount != 2 || snap.TotalCount != 2 || snap.RunID != run.ID {
		t.Errorf("status = %+v", snap)
	}
	if len(rec.statuses) == 0 || rec.statuses[len(rec.statuses)-1] != StateCompleted {
		t.Errorf("status events = %v, want to end with completed", rec.statuses)
	}
}

func TestRun_HumanTasksLeaveRunWaiting(t *testing.T) {
	db := newTestStore(t)
	human := agentTask("florist", models.PriorityHigh)
	human.Assignee = "jordan"
	seedEvent(t, db, "evt-1", agentTask("t1", models.PriorityMedium), human)

	o, err := New(db, newScriptedGateway(), "evt-1", WithClock(testClock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if o.State() != StateWaitingForUser {
		t.Errorf("state = %s, want waiting_for_user", o.State())
	}
}

func TestRun_EmptyEventCompletes(t *testing.T) {
	db := newTestStore(t)
	seedEvent(t, db, "evt-1")
	gw := newScriptedGateway()
	o, err := New(db, gw, "evt-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if o.State() != StateCompleted || gw.Calls() != 0 {
		t.Errorf("state = %s calls = %d", o.State(), gw.Calls())
	}
}

func TestRun_BlockResolveResume(t *testing.T) {
	db := newTestStore(t)
	seedEvent(t, db, "evt-1", agentTask("t1", models.PriorityMedium))

	gw := newScriptedGateway(askBudget("ask-1"), expectAnswer("ask-1", "$20k"))
	o, err := New(db, gw, "evt-1", WithClock(testClock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if o.State() != StateWaitingForUser {
		t.Fatalf("state = %s, want waiting_for_user", o.State())
	}
	if run := o.Run(); run.Status != models.RunStatusPaused {
		t.Errorf("run status = %s, want paused", run.Status)
	}

	notes, err := db.ListNotificationsByEvent("evt-1", true)
	if err != nil || len(notes) != 1 {
		t.Fatalf("notifications = %v, %v", notes, err)
	}

	res, err := o.HandleUserResponse(context.Background(), notes[0].ID, "$20k")
	if err != nil {
		t.Fatalf("HandleUserResponse: %v", err)
	}
	if !res.Accepted || !res.Resumed || res.TaskID != "t1" {
		t.Fatalf("resolution = %+v", res)
	}
	waitLoop(t, o)

	if o.State() != StateCompleted {
		t.Fatalf("state after resume = %s, want completed", o.State())
	}
	if task := mustTask(t, db, "t1"); task.Status != models.TaskStatusDone || task.Summary != "Budget $20k" {
		t.Errorf("task = %s %q", task.Status, task.Summary)
	}
	n, err := db.GetNotification(notes[0].ID)
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if !n.IsResolved || n.Response != "$20k" {
		t.Errorf("notification = %+v", n)
	}
}

func TestHandleUserResponse_ResumesFromPersistedHistory(t *testing.T) {
	db := newTestStore(t)
	seedEvent(t, db, "evt-1", agentTask("t1", models.PriorityMedium))

	first, err := New(db, newScriptedGateway(askBudget("ask-1")), "evt-1", WithClock(testClock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	notes, _ := db.ListNotificationsByEvent("evt-1", true)
	if len(notes) != 1 {
		t.Fatalf("got %d open notifications", len(notes))
	}

	// A fresh process answers through its own orchestrator and cache.
	gw := newScriptedGateway(expectAnswer("ask-1", "$15k"))
	second, err := New(db, gw, "evt-1", WithClock(testClock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := second.HandleUserResponse(context.Background(), notes[0].ID, "$15k")
	if err != nil {
		t.Fatalf("HandleUserResponse: %v", err)
	}
	if !res.Accepted || res.Resumed {
		t.Fatalf("resolution = %+v, want accepted without resume", res)
	}
	if task := mustTask(t, db, "t1"); task.Status != models.TaskStatusInProgress {
		t.Fatalf("status = %s, want in-progress", task.Status)
	}

	// The history must be rebuilt from the message log, not the cache.
	second.cache.Invalidate("t1")
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if second.State() != StateCompleted {
		t.Fatalf("state = %s, want completed", second.State())
	}
}

func TestHandleUserResponse_FallsBackWithoutCallID(t *testing.T) {
	db := newTestStore(t)
	seedEvent(t, db, "evt-1", agentTask("t1", models.PriorityMedium))

	gw := newScriptedGateway(askBudget("ask-1"), expectAnswer("ask-1", "yes"))
	o, err := New(db, gw, "evt-1", WithClock(testClock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Drop the correlation id to exercise the last-call fallback.
	notes, _ := db.ListNotificationsByEvent("evt-1", true)
	if _, err := db.Exec(`UPDATE notifications SET tool_call_id = '' WHERE id = ?`, notes[0].ID); err != nil {
		t.Fatalf("clear tool_call_id: %v", err)
	}

	if _, err := o.HandleUserResponse(context.Background(), notes[0].ID, "yes"); err != nil {
		t.Fatalf("HandleUserResponse: %v", err)
	}
	waitLoop(t, o)
	if o.State() != StateCompleted {
		t.Errorf("state = %s, want completed", o.State())
	}
}

func TestHandleUserResponse_IgnoresUnknownAndRepeated(t *testing.T) {
	db := newTestStore(t)
	seedEvent(t, db, "evt-1", agentTask("t1", models.PriorityMedium))
	o, err := New(db, newScriptedGateway(askBudget("ask-1")), "evt-1", WithClock(testClock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.HandleUserResponse(context.Background(), "nope", "hello")
	if err != nil || res.Accepted {
		t.Fatalf("unknown id = %+v, %v", res, err)
	}

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Stop()
	notes, _ := db.ListNotificationsByEvent("evt-1", true)
	if _, err := o.HandleUserResponse(context.Background(), notes[0].ID, "first"); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	res, err = o.HandleUserResponse(context.Background(), notes[0].ID, "second")
	if err != nil || res.Accepted {
		t.Fatalf("repeated answer = %+v, %v", res, err)
	}
	n, _ := db.GetNotification(notes[0].ID)
	if n.Response != "first" {
		t.Errorf("response = %q, want first answer kept", n.Response)
	}
}

func TestStop_WhileWaitingPreventsResume(t *testing.T) {
	db := newTestStore(t)
	seedEvent(t, db, "evt-1", agentTask("t1", models.PriorityMedium))
	gw := newScriptedGateway(askBudget("ask-1"))
	o, err := New(db, gw, "evt-1", WithClock(testClock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	o.Stop()
	if o.State() != StateIdle {
		t.Fatalf("state after stop = %s, want idle", o.State())
	}

	notes, _ := db.ListNotificationsByEvent("evt-1", true)
	res, err := o.HandleUserResponse(context.Background(), notes[0].ID, "$5k")
	if err != nil {
		t.Fatalf("HandleUserResponse: %v", err)
	}
	if res.Resumed {
		t.Error("stopped orchestrator resumed")
	}
	if gw.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", gw.Calls())
	}
	if task := mustTask(t, db, "t1"); task.Status != models.TaskStatusInProgress {
		t.Errorf("status = %s, want in-progress", task.Status)
	}
}

func TestStart_CancelledContextPauses(t *testing.T) {
	db := newTestStore(t)
	seedEvent(t, db, "evt-1", agentTask("t1", models.PriorityMedium))
	gw := newScriptedGateway()
	o, err := New(db, gw, "evt-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if o.State() != StateIdle || gw.Calls() != 0 {
		t.Errorf("state = %s calls = %d", o.State(), gw.Calls())
	}
	run, _ := db.LatestRun("evt-1")
	if run.Status != models.RunStatusPaused {
		t.Errorf("run status = %s, want paused", run.Status)
	}
}

func TestStop_LetsInFlightCallFinish(t *testing.T) {
	db := newTestStore(t)
	seedEvent(t, db, "evt-1", agentTask("t1", models.PriorityMedium), agentTask("t2", models.PriorityLow))

	var o *Orchestrator
	gw := newScriptedGateway(func(string, conversation.History) (*api.Response, error) {
		o.Stop()
		return toolUse(call("c1", tools.MarkTaskComplete, nil)), nil
	})
	var err error
	o, err = New(db, gw, "evt-1", WithClock(testClock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if task := mustTask(t, db, "t1"); task.Status != models.TaskStatusDone {
		t.Errorf("t1 = %s, want the in-flight result applied", task.Status)
	}
	if task := mustTask(t, db, "t2"); task.Status != models.TaskStatusTodo {
		t.Errorf("t2 = %s, want untouched", task.Status)
	}
	if o.State() != StateIdle {
		t.Errorf("state = %s, want idle", o.State())
	}
}

func TestStop_DoesNotInterruptToolBatch(t *testing.T) {
	db := newTestStore(t)
	seedEvent(t, db, "evt-1", agentTask("t1", models.PriorityMedium))
	disk := files.NewDiskWriter(t.TempDir())

	var o *Orchestrator
	gw := newScriptedGateway(func(string, conversation.History) (*api.Response, error) {
		o.Stop()
		return toolUse(call("w1", tools.WriteEventFile, map[string]any{"filename": "plan.md", "content": "18:00 doors"})), nil
	})
	var err error
	o, err = New(db, gw, "evt-1", WithClock(testClock), WithFiles(disk))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got, err := disk.Read("evt-1", "plan.md"); err != nil || got != "18:00 doors" {
		t.Errorf("Read(plan.md) = %q, %v", got, err)
	}
	msgs, err := db.ListMessagesByTask("t1")
	if err != nil {
		t.Fatalf("ListMessagesByTask: %v", err)
	}
	var found bool
	for _, m := range msgs {
		if m.Role == models.RoleToolResult && m.ToolCallID == "w1" {
			found = true
			if m.IsError {
				t.Errorf("write result recorded as error: %s", m.ToolResult)
			}
		}
	}
	if !found {
		t.Error("no result recorded for the write call")
	}
	if gw.Calls() != 1 || o.State() != StateIdle {
		t.Errorf("calls = %d state = %s, want 1/idle", gw.Calls(), o.State())
	}
}

func TestMetrics_RecordRun(t *testing.T) {
	db := newTestStore(t)
	seedEvent(t, db, "evt-1", agentTask("t1", models.PriorityMedium))

	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)
	gw := newScriptedGateway(
		fail(errors.New("bad request")),
	)
	o, err := New(db, gw, "evt-1", WithMetrics(m), WithClock(testClock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := testutil.ToFloat64(m.modelCalls.WithLabelValues("permanent")); got != 1 {
		t.Errorf("permanent model calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.modelCalls.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok model calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.toolCalls.WithLabelValues(tools.MarkTaskComplete, "success")); got != 1 {
		t.Errorf("mark_task_complete calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.taskOutcomes.WithLabelValues(string(OutcomeComplete))); got != 1 {
		t.Errorf("complete outcomes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tokens.WithLabelValues("input")); got != 10 {
		t.Errorf("input tokens = %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.runsActive); got != 0 {
		t.Errorf("runs active = %v, want 0", got)
	}

	// Registering twice on one registry reuses the collectors.
	if again := MustNewMetrics(reg); again.modelCalls != m.modelCalls {
		t.Error("second MustNewMetrics did not reuse collectors")
	}
}
