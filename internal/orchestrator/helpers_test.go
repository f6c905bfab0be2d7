package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/gala/internal/api"
	"github.com/ShayCichocki/gala/internal/conversation"
	"github.com/ShayCichocki/gala/internal/state"
	"github.com/ShayCichocki/gala/internal/tools"
	"github.com/ShayCichocki/gala/pkg/models"
)

var testNow = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

// step produces one scripted model reply. It sees the task's system prompt
// and the history sent with the call.
type step func(system string, h conversation.History) (*api.Response, error)

// scriptedGateway replays steps in order. Once the script is exhausted every
// call completes the task, so a runaway loop still terminates.
type scriptedGateway struct {
	mu        sync.Mutex
	steps     []step
	calls     int
	histories []conversation.History
	specs     [][]tools.Spec
}

func newScriptedGateway(steps ...step) *scriptedGateway {
	return &scriptedGateway{steps: steps}
}

func (g *scriptedGateway) Call(_ context.Context, system string, h conversation.History, specs []tools.Spec) (*api.Response, error) {
	g.mu.Lock()
	idx := g.calls
	g.calls++
	g.histories = append(g.histories, append(conversation.History(nil), h...))
	g.specs = append(g.specs, specs)
	g.mu.Unlock()

	if idx < len(g.steps) {
		return g.steps[idx](system, h)
	}
	return toolUse(call(fmt.Sprintf("auto-%d", idx), tools.MarkTaskComplete, map[string]any{"summary": "done"})), nil
}

func (g *scriptedGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *scriptedGateway) History(i int) conversation.History {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.histories[i]
}

func call(id, name string, input map[string]any) conversation.ToolCall {
	raw, _ := json.Marshal(input)
	return conversation.ToolCall{ID: conversation.ToolCallID(id), Name: name, Input: raw}
}

func toolUse(calls ...conversation.ToolCall) *api.Response {
	return &api.Response{ToolCalls: calls, StopReason: api.StopToolUse, InputTokens: 10, OutputTokens: 5}
}

func reply(r *api.Response) step {
	return func(string, conversation.History) (*api.Response, error) { return r, nil }
}

func fail(err error) step {
	return func(string, conversation.History) (*api.Response, error) { return nil, err }
}

func newTestStore(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "gala.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedEvent(t *testing.T, db *state.DB, id string, tasks ...models.Task) *models.Event {
	t.Helper()
	e := &models.Event{
		ID:         id,
		Name:       "Harbor Gala",
		Type:       "fundraiser",
		Date:       time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC),
		Location:   "Pier 9",
		GuestCount: 150,
		CreatedAt:  testNow,
	}
	if err := db.CreateEvent(e); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	for i := range tasks {
		tasks[i].EventID = id
		if tasks[i].Category == "" {
			tasks[i].Category = models.CategoryGeneral
		}
		tasks[i].CreatedAt = testNow
		tasks[i].UpdatedAt = testNow
	}
	if len(tasks) > 0 {
		if err := db.CreateTasks(tasks); err != nil {
			t.Fatalf("CreateTasks: %v", err)
		}
	}
	return e
}

func seedRun(t *testing.T, db *state.DB, eventID string) *models.Run {
	t.Helper()
	r := &models.Run{ID: "run-" + eventID, EventID: eventID, Status: models.RunStatusRunning, StartedAt: testNow}
	if err := db.CreateRun(r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return r
}

func mustTask(t *testing.T, db *state.DB, id string) *models.Task {
	t.Helper()
	task, err := db.GetTask(id)
	if err != nil {
		t.Fatalf("GetTask(%s): %v", id, err)
	}
	return task
}

func waitLoop(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Wait(ctx); err != nil {
		t.Fatalf("loop did not finish: %v", err)
	}
}

// recorder collects observer callbacks.
type recorder struct {
	mu       sync.Mutex
	events   []OrchestratorEvent
	statuses []State
}

func (r *recorder) observer() Observer {
	return ObserverFunc(func(e OrchestratorEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
		if e.Status != nil {
			r.statuses = append(r.statuses, e.Status.State)
		}
	})
}

func (r *recorder) count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}
