package models

import "time"

// AgentAssignee is the assignment target that hands a task to the AI agent.
// Tasks assigned to anyone else are invisible to the scheduler.
const AgentAssignee = "ai-agent"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusTodo indicates the task has not started.
	TaskStatusTodo TaskStatus = "todo"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in-progress"
	// TaskStatusDone indicates the task completed successfully.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusBlocked indicates the task is waiting on a human answer.
	TaskStatusBlocked TaskStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// Priority ranks tasks for scheduling. Higher is more urgent.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityMedium Priority = 1
	PriorityHigh   Priority = 2
)

// Valid returns true if the priority is within the known range.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

// String returns the human readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Subtask is a checklist item inside a task.
type Subtask struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// Task represents a unit of event-planning work.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// EventID is the event this task belongs to.
	EventID string `json:"event_id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Priority is the scheduling priority.
	Priority Priority `json:"priority"`
	// DueDate is the optional deadline.
	DueDate *time.Time `json:"due_date,omitempty"`
	// Assignee is a collaborator id or AgentAssignee.
	Assignee string `json:"assignee"`
	// Dependencies lists task IDs that must be done before this task.
	Dependencies []string `json:"dependencies,omitempty"`
	// Blockers lists task IDs a collaborator marked as blocking this one.
	Blockers []string `json:"blockers,omitempty"`
	// Subtasks is an optional checklist.
	Subtasks []Subtask `json:"subtasks,omitempty"`
	// Category selects the agent persona.
	Category AgentCategory `json:"category"`
	// Document is the collaborative long-form body shared by human and agent.
	Document string `json:"document,omitempty"`
	// Progress is the agent reported completion percentage (0-100).
	Progress int `json:"progress"`
	// ProgressText is the agent reported human readable progress note.
	ProgressText string `json:"progress_text,omitempty"`
	// Summary is the agent completion summary.
	Summary string `json:"summary,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last written.
	UpdatedAt time.Time `json:"updated_at"`
	// CompletedAt is when the task was completed, if applicable.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AssignedToAgent reports whether the scheduler may pick this task.
func (t *Task) AssignedToAgent() bool {
	return t.Assignee == AgentAssignee
}

// DependenciesDone reports whether every dependency references a done task.
// A dependency id missing from byID counts as not done.
func (t *Task) DependenciesDone(byID map[string]*Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := byID[dep]
		if !ok || d.Status != TaskStatusDone {
			return false
		}
	}
	return true
}

// IndexTasks builds an id lookup over a task slice.
func IndexTasks(tasks []Task) map[string]*Task {
	byID := make(map[string]*Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}
	return byID
}

// ClampProgress bounds a percentage to 0-100.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
