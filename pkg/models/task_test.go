package models

import (
	"testing"
	"time"
)

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"todo is valid", TaskStatusTodo, true},
		{"in-progress is valid", TaskStatusInProgress, true},
		{"blocked is valid", TaskStatusBlocked, true},
		{"done is valid", TaskStatusDone, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"underscore spelling is invalid", TaskStatus("in_progress"), false},
		{"unknown status is invalid", TaskStatus("pending"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestPriority(t *testing.T) {
	tests := []struct {
		p     Priority
		valid bool
		name  string
	}{
		{PriorityLow, true, "low"},
		{PriorityMedium, true, "medium"},
		{PriorityHigh, true, "high"},
		{Priority(3), false, "unknown"},
		{Priority(-1), false, "unknown"},
	}

	for _, tt := range tests {
		if got := tt.p.Valid(); got != tt.valid {
			t.Errorf("Priority(%d).Valid() = %v, want %v", tt.p, got, tt.valid)
		}
		if got := tt.p.String(); got != tt.name {
			t.Errorf("Priority(%d).String() = %q, want %q", tt.p, got, tt.name)
		}
	}
}

func TestTask_DependenciesDone(t *testing.T) {
	tasks := []Task{
		{ID: "a", Status: TaskStatusDone},
		{ID: "b", Status: TaskStatusInProgress},
		{ID: "c", Status: TaskStatusTodo, Dependencies: []string{"a"}},
		{ID: "d", Status: TaskStatusTodo, Dependencies: []string{"a", "b"}},
		{ID: "e", Status: TaskStatusTodo, Dependencies: []string{"missing"}},
		{ID: "f", Status: TaskStatusTodo},
	}
	byID := IndexTasks(tasks)

	tests := []struct {
		id   string
		want bool
	}{
		{"c", true},
		{"d", false},
		{"e", false},
		{"f", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := byID[tt.id].DependenciesDone(byID); got != tt.want {
				t.Errorf("DependenciesDone(%s) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestTask_AssignedToAgent(t *testing.T) {
	agent := Task{Assignee: AgentAssignee}
	human := Task{Assignee: "user-42"}

	if !agent.AssignedToAgent() {
		t.Error("task assigned to ai-agent should be agent work")
	}
	if human.AssignedToAgent() {
		t.Error("task assigned to a collaborator should not be agent work")
	}
}

func TestIndexTasks_PointsIntoSlice(t *testing.T) {
	tasks := []Task{{ID: "a"}, {ID: "b"}}
	byID := IndexTasks(tasks)

	byID["b"].Status = TaskStatusDone
	if tasks[1].Status != TaskStatusDone {
		t.Error("IndexTasks should reference the original slice elements")
	}
}

func TestClampProgress(t *testing.T) {
	tests := []struct{ in, want int }{
		{-5, 0},
		{0, 0},
		{55, 55},
		{100, 100},
		{250, 100},
	}
	for _, tt := range tests {
		if got := ClampProgress(tt.in); got != tt.want {
			t.Errorf("ClampProgress(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEventFormData_ToEvent(t *testing.T) {
	form := EventFormData{
		Name:       "Summer Gala",
		Type:       "fundraiser",
		Date:       "2025-06-01",
		Location:   "Harbor Hall",
		GuestCount: 120,
		Budget:     15000,
	}
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	ev, err := form.ToEvent("evt-1", now)
	if err != nil {
		t.Fatalf("ToEvent failed: %v", err)
	}
	if ev.ID != "evt-1" || ev.Name != "Summer Gala" || ev.GuestCount != 120 {
		t.Errorf("unexpected event fields: %+v", ev)
	}
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if !ev.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", ev.Date, want)
	}
	if !ev.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", ev.CreatedAt, now)
	}

	if _, err := (EventFormData{Date: "June 1st"}).ToEvent("x", now); err == nil {
		t.Error("expected error for unparseable date")
	}
}
