package api

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/gala/internal/conversation"
)

// StopReason is why the model ended its turn.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Response is one assistant turn.
type Response struct {
	Text         string
	ToolCalls    []conversation.ToolCall
	StopReason   StopReason
	InputTokens  int64
	OutputTokens int64
}

// EndedTurn reports whether the model stopped naturally.
func (r *Response) EndedTurn() bool {
	return r.StopReason == StopEndTurn
}

// Entry converts the response into the history entry that records it.
// It returns nil for an empty response.
func (r *Response) Entry() conversation.Entry {
	if len(r.ToolCalls) > 0 {
		return conversation.ToolCallBatch{Text: r.Text, Calls: r.ToolCalls}
	}
	if r.Text == "" {
		return nil
	}
	return conversation.TextTurn{Role: conversation.RoleAssistant, Text: r.Text}
}

// FromMessage converts an SDK message into a Response.
func FromMessage(msg *anthropic.Message) *Response {
	resp := &Response{
		StopReason:   StopReason(msg.StopReason),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Text += variant.Text
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, conversation.ToolCall{
				ID:    conversation.ToolCallID(variant.ID),
				Name:  variant.Name,
				Input: variant.Input,
			})
		}
	}
	return resp
}

// MessageParams renders a history as SDK message params. Consecutive entries
// with the same role are merged into one message because the API expects
// alternating turns.
func MessageParams(h conversation.History) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	push := func(role anthropic.MessageParamRole, blocks []anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, e := range h {
		switch v := e.(type) {
		case conversation.TextTurn:
			if v.Text == "" {
				continue
			}
			role := anthropic.MessageParamRoleUser
			if v.Role == conversation.RoleAssistant {
				role = anthropic.MessageParamRoleAssistant
			}
			push(role, []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(v.Text)})

		case conversation.ToolCallBatch:
			var blocks []anthropic.ContentBlockParamUnion
			if v.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(v.Text))
			}
			for _, c := range v.Calls {
				input := c.Input
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(string(c.ID), input, c.Name))
			}
			push(anthropic.MessageParamRoleAssistant, blocks)

		case conversation.ToolResultBatch:
			var blocks []anthropic.ContentBlockParamUnion
			for _, r := range v.Results {
				blocks = append(blocks, anthropic.NewToolResultBlock(string(r.CallID), r.Content, r.IsError))
			}
			push(anthropic.MessageParamRoleUser, blocks)
		}
	}
	return out
}
