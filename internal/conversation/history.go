// Package conversation models the per-task transcript exchanged with the
// model as a closed set of entry types with explicit tool call correlation.
package conversation

import (
	"encoding/json"
	"fmt"
)

// ToolCallID correlates a tool invocation with its result.
type ToolCallID string

// Role is the speaker of a plain text turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one element of a History. The set of implementations is closed:
// TextTurn, ToolCallBatch and ToolResultBatch.
type Entry interface {
	isEntry()
}

// TextTurn is a plain text message from the user or the assistant.
type TextTurn struct {
	Role Role
	Text string
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID    ToolCallID      `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolCallBatch is an assistant turn that invoked one or more tools.
// Text holds any prose the model produced alongside the calls.
type ToolCallBatch struct {
	Text  string
	Calls []ToolCall
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	CallID  ToolCallID
	Content string
	IsError bool
}

// ToolResultBatch answers the calls of the preceding ToolCallBatch.
type ToolResultBatch struct {
	Results []ToolResult
}

func (TextTurn) isEntry()        {}
func (ToolCallBatch) isEntry()   {}
func (ToolResultBatch) isEntry() {}

// NotExecuted is the result content given to calls skipped by a batch that
// stopped early.
const NotExecuted = "Not executed: the task was paused before this tool call ran."

// History is an ordered transcript. Values are treated as immutable; the
// mutating helpers return a new slice.
type History []Entry

// Append returns a copy of h with entries added.
func (h History) Append(entries ...Entry) History {
	out := make(History, len(h), len(h)+len(entries))
	copy(out, h)
	return append(out, entries...)
}

// AppendResults appends batch, merging it into a trailing ToolResultBatch so
// partial results and their later completion form one entry, matching what
// Rebuild produces from the persisted rows.
func (h History) AppendResults(batch ToolResultBatch) History {
	if len(batch.Results) == 0 {
		return h
	}
	if last, ok := h.Last().(ToolResultBatch); ok {
		merged := ToolResultBatch{Results: make([]ToolResult, 0, len(last.Results)+len(batch.Results))}
		merged.Results = append(merged.Results, last.Results...)
		merged.Results = append(merged.Results, batch.Results...)
		out := make(History, len(h))
		copy(out, h)
		out[len(out)-1] = merged
		return out
	}
	return h.Append(batch)
}

// Last returns the final entry or nil.
func (h History) Last() Entry {
	if len(h) == 0 {
		return nil
	}
	return h[len(h)-1]
}

// LastCallID returns the id of the most recent call to the named tool.
func (h History) LastCallID(name string) (ToolCallID, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		batch, ok := h[i].(ToolCallBatch)
		if !ok {
			continue
		}
		for j := len(batch.Calls) - 1; j >= 0; j-- {
			if batch.Calls[j].Name == name {
				return batch.Calls[j].ID, true
			}
		}
	}
	return "", false
}

// FindCall returns the call with the given id.
func (h History) FindCall(id ToolCallID) (ToolCall, bool) {
	idx := h.batchIndex(id)
	if idx < 0 {
		return ToolCall{}, false
	}
	for _, c := range h[idx].(ToolCallBatch).Calls {
		if c.ID == id {
			return c, true
		}
	}
	return ToolCall{}, false
}

// Unanswered lists the calls of the latest ToolCallBatch that have no result.
func (h History) Unanswered() []ToolCall {
	for i := len(h) - 1; i >= 0; i-- {
		if _, ok := h[i].(ToolCallBatch); ok {
			return h.unansweredAt(i)
		}
	}
	return nil
}

// CloseDangling answers every unanswered call of the latest batch with an
// error result so the transcript is valid for the next model call. It returns
// h unchanged and false when nothing was dangling.
func (h History) CloseDangling(reason string) (History, ToolResultBatch, bool) {
	pending := h.Unanswered()
	if len(pending) == 0 {
		return h, ToolResultBatch{}, false
	}
	batch := ToolResultBatch{Results: make([]ToolResult, 0, len(pending))}
	for _, c := range pending {
		batch.Results = append(batch.Results, ToolResult{CallID: c.ID, Content: reason, IsError: true})
	}
	return h.AppendResults(batch), batch, true
}

// AnswerCall builds the result batch that answers call id with content. Any
// other unanswered calls from the same batch are closed with NotExecuted.
func (h History) AnswerCall(id ToolCallID, content string) (ToolResultBatch, error) {
	idx := h.batchIndex(id)
	if idx < 0 {
		return ToolResultBatch{}, fmt.Errorf("tool call %s not found in history", id)
	}

	pending := h.unansweredAt(idx)
	found := false
	results := []ToolResult{}
	for _, c := range pending {
		if c.ID == id {
			found = true
			results = append([]ToolResult{{CallID: id, Content: content}}, results...)
			continue
		}
		results = append(results, ToolResult{CallID: c.ID, Content: NotExecuted, IsError: true})
	}
	if !found {
		return ToolResultBatch{}, fmt.Errorf("tool call %s already answered", id)
	}
	return ToolResultBatch{Results: results}, nil
}

func (h History) batchIndex(id ToolCallID) int {
	for i := len(h) - 1; i >= 0; i-- {
		batch, ok := h[i].(ToolCallBatch)
		if !ok {
			continue
		}
		for _, c := range batch.Calls {
			if c.ID == id {
				return i
			}
		}
	}
	return -1
}

func (h History) unansweredAt(idx int) []ToolCall {
	batch := h[idx].(ToolCallBatch)
	answered := make(map[ToolCallID]bool)
	for _, e := range h[idx+1:] {
		if rb, ok := e.(ToolResultBatch); ok {
			for _, r := range rb.Results {
				answered[r.CallID] = true
			}
		}
	}
	var out []ToolCall
	for _, c := range batch.Calls {
		if !answered[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
