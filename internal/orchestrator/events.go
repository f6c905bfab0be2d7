package orchestrator

import (
	"time"

	"github.com/ShayCichocki/gala/pkg/models"
)

// State is the orchestrator state machine position.
type State string

const (
	// StateIdle is the initial state and the state after a stop.
	StateIdle State = "idle"
	// StateExecuting means the task loop is running.
	StateExecuting State = "executing"
	// StateWaitingForUser means every remaining task is blocked on a human.
	StateWaitingForUser State = "waiting_for_user"
	// StateCompleted means every task is done.
	StateCompleted State = "completed"
	// StateFailed means the loop hit an internal error.
	StateFailed State = "failed"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// StatusSnapshot is the aggregate view emitted on every state transition.
type StatusSnapshot struct {
	EventID      string `json:"event_id"`
	RunID        string `json:"run_id,omitempty"`
	State        State  `json:"state"`
	ActiveTaskID string `json:"active_task_id,omitempty"`
	DoneCount    int    `json:"done_count"`
	TotalCount   int    `json:"total_count"`
	BlockedCount int    `json:"blocked_count"`
}

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTaskUpdated indicates a task was written.
	EventTaskUpdated EventType = "task_updated"
	// EventNotificationCreated indicates a new notification.
	EventNotificationCreated EventType = "notification_created"
	// EventChatMessage indicates a chat-visible message was persisted.
	EventChatMessage EventType = "chat_message"
	// EventStatusChanged indicates a state transition.
	EventStatusChanged EventType = "status_changed"
)

// OrchestratorEvent represents an event emitted by the orchestrator.
// Exactly one payload field is set, matching Type.
type OrchestratorEvent struct {
	Type         EventType
	Task         *models.Task
	Notification *models.Notification
	Message      *models.Message
	Status       *StatusSnapshot
	Timestamp    time.Time
}

// Observer receives orchestrator activity. Calls are made synchronously from
// the task loop, so implementations must not block.
type Observer interface {
	TaskUpdated(task models.Task)
	NotificationCreated(n models.Notification)
	ChatMessage(m models.Message)
	StatusChanged(s StatusSnapshot)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) TaskUpdated(models.Task)                 {}
func (NopObserver) NotificationCreated(models.Notification) {}
func (NopObserver) ChatMessage(models.Message)              {}
func (NopObserver) StatusChanged(StatusSnapshot)            {}

// ObserverFunc adapts a single function to Observer.
type ObserverFunc func(OrchestratorEvent)

func (f ObserverFunc) TaskUpdated(task models.Task) {
	f(OrchestratorEvent{Type: EventTaskUpdated, Task: &task, Timestamp: time.Now()})
}

func (f ObserverFunc) NotificationCreated(n models.Notification) {
	f(OrchestratorEvent{Type: EventNotificationCreated, Notification: &n, Timestamp: time.Now()})
}

func (f ObserverFunc) ChatMessage(m models.Message) {
	f(OrchestratorEvent{Type: EventChatMessage, Message: &m, Timestamp: time.Now()})
}

func (f ObserverFunc) StatusChanged(s StatusSnapshot) {
	f(OrchestratorEvent{Type: EventStatusChanged, Status: &s, Timestamp: time.Now()})
}

// multiObserver fans out to several observers in order.
type multiObserver []Observer

// MultiObserver combines observers. Nil entries are skipped.
func MultiObserver(observers ...Observer) Observer {
	var out multiObserver
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return NopObserver{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multiObserver) TaskUpdated(task models.Task) {
	for _, o := range m {
		o.TaskUpdated(task)
	}
}

func (m multiObserver) NotificationCreated(n models.Notification) {
	for _, o := range m {
		o.NotificationCreated(n)
	}
}

func (m multiObserver) ChatMessage(msg models.Message) {
	for _, o := range m {
		o.ChatMessage(msg)
	}
}

func (m multiObserver) StatusChanged(s StatusSnapshot) {
	for _, o := range m {
		o.StatusChanged(s)
	}
}
