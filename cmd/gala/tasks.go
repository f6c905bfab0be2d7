package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/gala/internal/state"
	"github.com/ShayCichocki/gala/pkg/models"
)

// taskFlags holds the "tasks add" inputs.
type taskFlags struct {
	title       string
	description string
	priority    string
	due         string
	category    string
	assignee    string
}

var (
	addFlags     taskFlags
	editDocument string
	editFile     string
	editAppend   bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Add tasks and edit task documents",
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <event-id> --title TITLE",
	Short: "Add a task to an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if _, err := db.GetEvent(args[0]); err != nil {
			return fmt.Errorf("event %s: %w", args[0], err)
		}
		task, err := addFlags.task(args[0], uuid.NewString(), time.Now().UTC())
		if err != nil {
			return err
		}
		if err := db.CreateTask(&task); err != nil {
			return fmt.Errorf("save task: %w", err)
		}
		printStatus("✓", fmt.Sprintf("Added task %s (%s)", task.ID, task.Title), color.FgGreen)
		return nil
	},
}

var tasksEditCmd = &cobra.Command{
	Use:   "edit <task-id> --document TEXT | --document-file PATH",
	Short: "Replace or append to a task document",
	Long: `Edit the document shared between you and the agent working on a task.

Only the document is written, so editing while "gala run" works on the
event is safe. The agent sees the new text the next time it reads the
document or starts the task.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := documentInput(editDocument, editFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := writeDocument(db, args[0], text, editAppend, time.Now().UTC()); err != nil {
			return err
		}
		printStatus("✓", "Updated document of task "+args[0], color.FgGreen)
		return nil
	},
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task with its document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		t, err := db.GetTask(args[0])
		if err != nil {
			return fmt.Errorf("task %s: %w", args[0], err)
		}
		printTask(os.Stdout, t)
		return nil
	},
}

func init() {
	f := tasksAddCmd.Flags()
	f.StringVar(&addFlags.title, "title", "", "Task title")
	f.StringVar(&addFlags.description, "description", "", "Task description")
	f.StringVar(&addFlags.priority, "priority", "medium", "low, medium or high")
	f.StringVar(&addFlags.due, "due", "", "Due date (YYYY-MM-DD)")
	f.StringVar(&addFlags.category, "category", string(models.CategoryGeneral), "Agent category")
	f.StringVar(&addFlags.assignee, "assignee", models.AgentAssignee, "Collaborator id, or ai-agent")
	_ = tasksAddCmd.MarkFlagRequired("title")

	e := tasksEditCmd.Flags()
	e.StringVar(&editDocument, "document", "", "Document text")
	e.StringVar(&editFile, "document-file", "", "Read the document from a file, - for stdin")
	e.BoolVar(&editAppend, "append", false, "Append instead of replacing")
	tasksEditCmd.MarkFlagsMutuallyExclusive("document", "document-file")
	tasksEditCmd.MarkFlagsOneRequired("document", "document-file")

	tasksCmd.AddCommand(tasksAddCmd)
	tasksCmd.AddCommand(tasksEditCmd)
	tasksCmd.AddCommand(tasksShowCmd)
}

// task builds a new todo task from the flags.
func (f taskFlags) task(eventID, id string, now time.Time) (models.Task, error) {
	title := strings.TrimSpace(f.title)
	if title == "" {
		return models.Task{}, errors.New("--title is required")
	}
	priority, err := parsePriorityName(f.priority)
	if err != nil {
		return models.Task{}, err
	}
	category := models.AgentCategory(strings.ToLower(strings.TrimSpace(f.category)))
	if !category.Valid() {
		return models.Task{}, fmt.Errorf("unknown category %q", f.category)
	}
	assignee := strings.TrimSpace(f.assignee)
	if assignee == "" {
		assignee = models.AgentAssignee
	}

	t := models.Task{
		ID:          id,
		EventID:     eventID,
		Title:       title,
		Description: strings.TrimSpace(f.description),
		Status:      models.TaskStatusTodo,
		Priority:    priority,
		Assignee:    assignee,
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if f.due != "" {
		due, err := time.Parse(models.DateLayout, f.due)
		if err != nil {
			return models.Task{}, fmt.Errorf("--due must be %s: %w", models.DateLayout, err)
		}
		t.DueDate = &due
	}
	return t, nil
}

func parsePriorityName(s string) (models.Priority, error) {
	for _, p := range []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh} {
		if strings.EqualFold(strings.TrimSpace(s), p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q, want low, medium or high", s)
}

// documentInput returns the text given inline, or read from path.
func documentInput(text, path string, stdin io.Reader) (string, error) {
	if path == "" {
		return text, nil
	}
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return string(data), nil
}

// writeDocument sets or extends the document of a task. Nothing else on
// the task is written.
func writeDocument(db state.TaskStore, id, text string, appendText bool, now time.Time) error {
	t, err := db.GetTask(id)
	if err != nil {
		return fmt.Errorf("task %s: %w", id, err)
	}
	doc := text
	if appendText && t.Document != "" {
		doc = strings.TrimRight(t.Document, "\n") + "\n" + text
	}
	return db.UpdateTaskDocument(id, doc, now)
}

func printTask(w io.Writer, t *models.Task) {
	fmt.Fprintf(w, "%s\n", t.Title)
	fmt.Fprintf(w, "  ID: %s\n", t.ID)
	fmt.Fprintf(w, "  Status: %s (%d%%)\n", t.Status, t.Progress)
	fmt.Fprintf(w, "  Priority: %s\n", t.Priority)
	fmt.Fprintf(w, "  Assignee: %s\n", t.Assignee)
	if t.DueDate != nil {
		fmt.Fprintf(w, "  Due: %s\n", t.DueDate.Format(models.DateLayout))
	}
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
	if t.Document != "" {
		fmt.Fprintf(w, "\nDocument:\n%s\n", t.Document)
	}
}
