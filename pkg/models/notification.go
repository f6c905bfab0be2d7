package models

import "time"

// NotificationType classifies a human facing notification.
type NotificationType string

const (
	NotificationInputNeeded NotificationType = "input_needed"
	NotificationError       NotificationType = "error"
	NotificationInfo        NotificationType = "info"
	NotificationCompletion  NotificationType = "completion"
)

// Valid returns true if the type is a known value.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationInputNeeded, NotificationError, NotificationInfo, NotificationCompletion:
		return true
	default:
		return false
	}
}

// Notification is a human-in-the-loop prompt or alert.
type Notification struct {
	ID      string           `json:"id"`
	EventID string           `json:"event_id"`
	TaskID  string           `json:"task_id,omitempty"`
	RunID   string           `json:"run_id,omitempty"`
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	// Message is the literal question for input_needed notifications.
	Message string `json:"message"`
	// Context explains why the agent is asking.
	Context     string   `json:"context,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	// ToolCallID correlates an input_needed notification with the
	// request_user_input call that created it.
	ToolCallID string     `json:"tool_call_id,omitempty"`
	IsRead     bool       `json:"is_read"`
	IsResolved bool       `json:"is_resolved"`
	Response   string     `json:"response,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
