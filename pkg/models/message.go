package models

import (
	"encoding/json"
	"time"
)

// MessageRole identifies who produced a message.
type MessageRole string

const (
	RoleAssistant  MessageRole = "assistant"
	RoleUser       MessageRole = "user"
	RoleToolResult MessageRole = "tool_result"
	RoleSystem     MessageRole = "system"
)

// Valid returns true if the role is a known value.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleAssistant, RoleUser, RoleToolResult, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is one immutable entry in the run audit log.
//
// Assistant rows carry the text of a model turn and, when the turn invoked
// tools, the JSON array of calls in ToolInput. Tool result rows carry one
// result each, correlated by ToolCallID. A user row with a ToolCallID is an
// answer to a request_user_input call.
type Message struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	TaskID     string          `json:"task_id,omitempty"`
	Role       MessageRole     `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolResult string          `json:"tool_result,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
