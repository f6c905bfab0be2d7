package conversation

import (
	"encoding/json"

	"github.com/ShayCichocki/gala/pkg/models"
)

// EncodeCalls serializes tool calls for the assistant message row.
func EncodeCalls(calls []ToolCall) (json.RawMessage, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	return json.Marshal(calls)
}

// DecodeCalls is the inverse of EncodeCalls.
func DecodeCalls(raw json.RawMessage) ([]ToolCall, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var calls []ToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil, err
	}
	return calls, nil
}

// Rebuild reconstructs a task history from its persisted messages, which
// must be in creation order. System rows are audit-only and skipped.
// Consecutive result rows fold into one ToolResultBatch.
func Rebuild(messages []models.Message) (History, error) {
	var h History
	var pending *ToolResultBatch

	flush := func() {
		if pending != nil {
			h = append(h, *pending)
			pending = nil
		}
	}
	addResult := func(r ToolResult) {
		if pending == nil {
			pending = &ToolResultBatch{}
		}
		pending.Results = append(pending.Results, r)
	}

	for _, m := range messages {
		switch m.Role {
		case models.RoleToolResult:
			addResult(ToolResult{
				CallID:  ToolCallID(m.ToolCallID),
				Content: m.ToolResult,
				IsError: m.IsError,
			})

		case models.RoleUser:
			if m.ToolCallID != "" {
				addResult(ToolResult{CallID: ToolCallID(m.ToolCallID), Content: m.Content})
				continue
			}
			flush()
			h = append(h, TextTurn{Role: RoleUser, Text: m.Content})

		case models.RoleAssistant:
			flush()
			calls, err := DecodeCalls(m.ToolInput)
			if err != nil {
				return nil, err
			}
			if len(calls) > 0 {
				h = append(h, ToolCallBatch{Text: m.Content, Calls: calls})
			} else if m.Content != "" {
				h = append(h, TextTurn{Role: RoleAssistant, Text: m.Content})
			}
		}
	}
	flush()
	return h, nil
}
