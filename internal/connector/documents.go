package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/gala/internal/tools"
	"github.com/ShayCichocki/gala/pkg/models"
)

// DocumentsID is the connector id of the task document tools.
const DocumentsID = "task-documents"

// Task document tool names.
const (
	ReadTaskDocument   = "read_task_document"
	UpdateTaskDocument = "update_task_document"
)

// maxDocumentBytes caps a task document written by the model.
const maxDocumentBytes = 64 << 10

// DocumentStore is the slice of persistence the document tools need.
// *state.DB satisfies it.
type DocumentStore interface {
	GetTask(id string) (*models.Task, error)
	UpdateTaskDocument(id, document string, at time.Time) error
}

// TaskDocuments lets the model read and edit the document attached to a
// task, the same document organizers edit with "gala tasks edit". Only the
// document column is written.
type TaskDocuments struct {
	store DocumentStore
	now   func() time.Time
}

var _ Connector = (*TaskDocuments)(nil)

// NewTaskDocuments creates the connector. now defaults to time.Now.
func NewTaskDocuments(store DocumentStore, now func() time.Time) *TaskDocuments {
	if now == nil {
		now = time.Now
	}
	return &TaskDocuments{store: store, now: now}
}

func (d *TaskDocuments) ID() string { return DocumentsID }

func (d *TaskDocuments) Enabled() bool { return true }

func (d *TaskDocuments) Tools() []tools.Spec {
	taskID := map[string]any{
		"type":        "string",
		"description": "Task ID as listed in the system prompt",
	}
	return []tools.Spec{
		{
			Name:        ReadTaskDocument,
			Description: "Read the shared document of a task, including edits the organizer made since the task started.",
			InputSchema: tools.Schema{
				Properties: map[string]any{"task_id": taskID},
				Required:   []string{"task_id"},
			},
		},
		{
			Name: UpdateTaskDocument,
			Description: "Replace or append to the shared document of a task. " +
				"Use it for working notes the organizer should see, such as shortlists or open points.",
			InputSchema: tools.Schema{
				Properties: map[string]any{
					"task_id": taskID,
					"content": map[string]any{
						"type":        "string",
						"description": "Text to write",
					},
					"mode": map[string]any{
						"type":        "string",
						"enum":        []string{"replace", "append"},
						"description": "replace (default) or append",
					},
				},
				Required: []string{"task_id", "content"},
			},
		},
	}
}

func (d *TaskDocuments) Initialize(context.Context, map[string]string) error { return nil }

func (d *TaskDocuments) TestConnection(context.Context) error { return nil }

type documentArgs struct {
	TaskID  string `json:"task_id"`
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

// DocumentView is what the model gets back from the document tools.
type DocumentView struct {
	TaskID   string `json:"task_id"`
	Title    string `json:"title"`
	Document string `json:"document"`
}

func (d *TaskDocuments) ExecuteTool(_ context.Context, name string, input json.RawMessage) (any, error) {
	var args documentArgs
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("invalid %s input: %w", name, err)
		}
	}
	if strings.TrimSpace(args.TaskID) == "" {
		return nil, errors.New("task_id is required")
	}

	task, err := d.store.GetTask(args.TaskID)
	if err != nil {
		return nil, err
	}

	switch name {
	case ReadTaskDocument:
		return DocumentView{TaskID: task.ID, Title: task.Title, Document: task.Document}, nil
	case UpdateTaskDocument:
		doc, err := nextDocument(task.Document, args.Content, args.Mode)
		if err != nil {
			return nil, err
		}
		if err := d.store.UpdateTaskDocument(task.ID, doc, d.now()); err != nil {
			return nil, err
		}
		return DocumentView{TaskID: task.ID, Title: task.Title, Document: doc}, nil
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// nextDocument applies a replace or append edit.
func nextDocument(current, content, mode string) (string, error) {
	var doc string
	switch mode {
	case "", "replace":
		doc = content
	case "append":
		doc = current
		if doc != "" && !strings.HasSuffix(doc, "\n") {
			doc += "\n"
		}
		doc += content
	default:
		return "", fmt.Errorf("unknown mode %q, want replace or append", mode)
	}
	if len(doc) > maxDocumentBytes {
		return "", fmt.Errorf("document would be %d bytes, limit is %d", len(doc), maxDocumentBytes)
	}
	return doc, nil
}
