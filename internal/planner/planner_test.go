package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/gala/internal/api"
	"github.com/ShayCichocki/gala/internal/conversation"
	"github.com/ShayCichocki/gala/internal/tools"
	"github.com/ShayCichocki/gala/pkg/models"
)

var eventDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type fakeGateway struct {
	text   string
	err    error
	system string
	specs  []tools.Spec
}

func (g *fakeGateway) Call(_ context.Context, system string, _ conversation.History, specs []tools.Spec) (*api.Response, error) {
	g.system = system
	g.specs = specs
	if g.err != nil {
		return nil, g.err
	}
	return &api.Response{Text: g.text, StopReason: api.StopEndTurn}, nil
}

func TestParseTasks_EndToEndExample(t *testing.T) {
	raw := `[
		{"title": "Book venue", "priority": 2, "agentCategory": "venue-catering", "dependencies": []},
		{"title": "Send invites", "priority": 1, "agentCategory": "guests", "dependencies": [0], "dueDate": "2025-05-20"}
	]`
	tasks, err := ParseTasks(raw, eventDate)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, "Book venue", tasks[0].Title)
	assert.Equal(t, models.TaskStatusTodo, tasks[0].Status)
	assert.Equal(t, models.AgentAssignee, tasks[0].Assignee)
	assert.Empty(t, tasks[0].Dependencies)

	assert.Equal(t, []string{tasks[0].ID}, tasks[1].Dependencies)
	require.NotNil(t, tasks[1].DueDate)
	assert.Equal(t, "2025-05-20", tasks[1].DueDate.Format(models.DateLayout))
	assert.Equal(t, models.CategoryGuests, tasks[1].Category)
}

func TestParseTasks_RepairsInvalidFields(t *testing.T) {
	raw := `[
		{"title": "A", "dependencies": [2, 0, -1, "x"], "priority": 7, "agentCategory": "Florals"},
		{"title": "B", "dependencies": [0, 0, 1], "priority": "high", "dueDate": "2025-06-01"},
		{"title": "C", "dependencies": "1", "priority": -3, "dueDate": "2025-07-04"},
		{"title": "D", "priority": 1.4, "dueDate": "not a date", "subtasks": ["Call caterer", {"title": "Taste menu"}, 3]}
	]`
	tasks, err := ParseTasks(raw, eventDate)
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	a, b, c, d := tasks[0], tasks[1], tasks[2], tasks[3]
	assert.Empty(t, a.Dependencies, "forward, self and garbage deps dropped")
	assert.Equal(t, models.PriorityHigh, a.Priority)
	assert.Equal(t, models.CategoryGeneral, a.Category)

	assert.Equal(t, []string{a.ID}, b.Dependencies, "duplicates and self dropped")
	assert.Equal(t, models.PriorityHigh, b.Priority)
	assert.Nil(t, b.DueDate, "due date on the event day dropped")

	assert.Equal(t, []string{b.ID}, c.Dependencies, "scalar dependency accepted")
	assert.Equal(t, models.PriorityLow, c.Priority)
	assert.Nil(t, c.DueDate, "due date after the event dropped")

	assert.Equal(t, models.PriorityMedium, d.Priority)
	assert.Nil(t, d.DueDate)
	assert.Equal(t, []models.Subtask{{Title: "Call caterer"}, {Title: "Taste menu"}}, d.Subtasks)
}

func TestParseTasks_DropsUntitledAndRemapsDependencies(t *testing.T) {
	raw := `[{"title": "First"}, {"description": "no title"}, {"title": "Third", "dependencies": [0, 1]}]`
	tasks, err := ParseTasks(raw, eventDate)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, []string{tasks[0].ID}, tasks[1].Dependencies, "dependency on a dropped element removed")
}

func TestParseTasks_RepairsMalformedJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"code fence and prose", "Here is the plan:\n```json\n[{\"title\": \"Book venue\"}]\n```", 1},
		{"trailing comma", `[{"title": "A",}, {"title": "B"},]`, 2},
		{"single quotes", `[{'title': 'A', 'priority': 2}]`, 1},
		{"truncated", `[{"title": "A"}, {"title": "B"`, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tasks, err := ParseTasks(tc.raw, eventDate)
			require.NoError(t, err)
			assert.Len(t, tasks, tc.want)
		})
	}
}

func TestParseTasks_NoArray(t *testing.T) {
	_, err := ParseTasks("I could not come up with a plan.", eventDate)
	assert.ErrorIs(t, err, ErrNoTaskArray)
}

func TestParseTasks_UniqueIDs(t *testing.T) {
	tasks, err := ParseTasks(`[{"title":"a"},{"title":"b"},{"title":"c"}]`, eventDate)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, task := range tasks {
		assert.False(t, seen[task.ID], "duplicate id %s", task.ID)
		seen[task.ID] = true
	}
}

func TestPlanTasks(t *testing.T) {
	form := models.EventFormData{Name: "Spring Social", Type: "party", Date: "2025-06-01", GuestCount: 40}

	t.Run("parses the reply", func(t *testing.T) {
		gw := &fakeGateway{text: `[{"title": "Book venue"}]`}
		tasks, err := New(gw).PlanTasks(context.Background(), form)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Nil(t, gw.specs, "planning offers no tools")
		assert.True(t, strings.Contains(gw.system, "Spring Social"))
	})

	t.Run("unparseable reply is an empty plan", func(t *testing.T) {
		tasks, err := New(&fakeGateway{text: "sorry"}).PlanTasks(context.Background(), form)
		require.NoError(t, err)
		assert.NotNil(t, tasks)
		assert.Empty(t, tasks)
	})

	t.Run("model error is returned", func(t *testing.T) {
		_, err := New(&fakeGateway{err: errors.New("boom")}).PlanTasks(context.Background(), form)
		assert.Error(t, err)
	})

	t.Run("invalid date", func(t *testing.T) {
		bad := form
		bad.Date = "June 1st"
		_, err := New(&fakeGateway{}).PlanTasks(context.Background(), bad)
		assert.Error(t, err)
	})
}

func TestForEvent(t *testing.T) {
	tasks := ForEvent([]models.Task{{ID: "a"}, {ID: "b"}}, "evt-9")
	for _, task := range tasks {
		assert.Equal(t, "evt-9", task.EventID)
	}
}
