// Package tools defines the tool catalog offered to the model.
//
// Built-in tools drive orchestration state and are intercepted by the task
// executor. Connector tools reach external systems and are dispatched through
// the connector registry.
package tools

import (
	"fmt"
	"regexp"
)

// Built-in tool names.
const (
	RequestUserInput   = "request_user_input"
	MarkTaskComplete   = "mark_task_complete"
	UpdateTaskProgress = "update_task_progress"
	WriteEventFile     = "write_event_file"
)

// Schema is the JSON-schema-like input contract of a tool.
type Schema struct {
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required,omitempty"`
}

// Spec describes one callable tool.
type Spec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"input_schema"`
}

// Builtins returns the fixed set of control-flow tools.
func Builtins() []Spec {
	return []Spec{
		{
			Name: RequestUserInput,
			Description: "Ask the event organizer a question when you cannot proceed without their input. " +
				"The task pauses until they answer.",
			InputSchema: Schema{
				Properties: map[string]any{
					"question": map[string]any{
						"type":        "string",
						"description": "The exact question to ask the organizer",
					},
					"context": map[string]any{
						"type":        "string",
						"description": "Why you need this information",
					},
					"suggestions": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Optional quick-reply answers the organizer can pick from",
					},
				},
				Required: []string{"question", "context"},
			},
		},
		{
			Name:        MarkTaskComplete,
			Description: "Mark the current task as done once all of its work is finished.",
			InputSchema: Schema{
				Properties: map[string]any{
					"summary": map[string]any{
						"type":        "string",
						"description": "Short summary of what was accomplished",
					},
				},
				Required: []string{"summary"},
			},
		},
		{
			Name:        UpdateTaskProgress,
			Description: "Report progress on the current task. Safe to call any number of times.",
			InputSchema: Schema{
				Properties: map[string]any{
					"progress": map[string]any{
						"type":        "string",
						"description": "Human readable description of the progress made",
					},
					"percentage": map[string]any{
						"type":        "integer",
						"minimum":     0,
						"maximum":     100,
						"description": "Estimated completion percentage (optional)",
					},
				},
				Required: []string{"progress"},
			},
		},
		{
			Name:        WriteEventFile,
			Description: "Save a text document for this event, such as a guest list, schedule or vendor comparison.",
			InputSchema: Schema{
				Properties: map[string]any{
					"filename": map[string]any{
						"type":        "string",
						"description": "File name without directories, e.g. guest-list.md",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Full text content of the file",
					},
				},
				Required: []string{"filename", "content"},
			},
		},
	}
}

var builtinNames = map[string]struct{}{
	RequestUserInput:   {},
	MarkTaskComplete:   {},
	UpdateTaskProgress: {},
	WriteEventFile:     {},
}

// IsBuiltin reports whether name is one of the control-flow tools.
func IsBuiltin(name string) bool {
	_, ok := builtinNames[name]
	return ok
}

// BuiltinNames returns the built-in tool names in catalog order.
func BuiltinNames() []string {
	specs := Builtins()
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Validate checks that every spec has a usable name and that names are unique.
func Validate(specs []Spec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if !namePattern.MatchString(s.Name) {
			return fmt.Errorf("invalid tool name %q", s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate tool name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}
