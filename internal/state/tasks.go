package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/gala/pkg/models"
)

const taskColumns = `id, event_id, title, description, status, priority, due_date, assignee,
	dependencies, blockers, subtasks, category, document, progress, progress_text, summary,
	created_at, updated_at, completed_at`

// CreateTask appends a task to the end of its event's task list.
func (db *DB) CreateTask(t *models.Task) error {
	return db.Transaction(func(tx *sql.Tx) error {
		return insertTask(tx, t)
	})
}

// CreateTasks inserts tasks atomically, preserving slice order.
func (db *DB) CreateTasks(tasks []models.Task) error {
	return db.Transaction(func(tx *sql.Tx) error {
		for i := range tasks {
			if err := insertTask(tx, &tasks[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertTask(tx *sql.Tx, t *models.Task) error {
	var position int
	if err := tx.QueryRow(
		"SELECT COALESCE(MAX(position), -1) + 1 FROM tasks WHERE event_id = ?", t.EventID,
	).Scan(&position); err != nil {
		return fmt.Errorf("next task position: %w", err)
	}

	args, err := taskArgs(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	_, err = tx.Exec(`
		INSERT INTO tasks (position, `+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, append([]any{position}, args...)...)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// UpdateTask writes every mutable field of t. Concurrent writers are
// last-write-wins. Agent runs use UpdateTaskProgress instead.
func (db *DB) UpdateTask(t *models.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	// taskArgs leads with id and event_id; the UPDATE keys on id last.
	res, err := db.Exec(`
		UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?, due_date = ?,
			assignee = ?, dependencies = ?, blockers = ?, subtasks = ?, category = ?, document = ?,
			progress = ?, progress_text = ?, summary = ?, created_at = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, append(args[2:], t.ID)...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

// TaskProgress holds the task fields an agent run owns.
type TaskProgress struct {
	Status       models.TaskStatus
	Progress     int
	ProgressText string
	Summary      string
	CompletedAt  *time.Time
	UpdatedAt    time.Time
}

// UpdateTaskProgress writes only the run-owned fields of task id. Edits to
// any other field made meanwhile are kept.
func (db *DB) UpdateTaskProgress(id string, p TaskProgress) error {
	res, err := db.Exec(`
		UPDATE tasks SET status = ?, progress = ?, progress_text = ?, summary = ?,
			completed_at = ?, updated_at = ?
		WHERE id = ?
	`, string(p.Status), p.Progress, p.ProgressText, p.Summary,
		nullableTime(p.CompletedAt), formatTime(p.UpdatedAt), id)
	if err != nil {
		return fmt.Errorf("update task progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateTaskDocument replaces the collaborative document of task id.
func (db *DB) UpdateTaskDocument(id, document string, at time.Time) error {
	res, err := db.Exec(`UPDATE tasks SET document = ?, updated_at = ? WHERE id = ?`,
		document, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("update task document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListTasksByEvent returns an event's tasks in list order.
func (db *DB) ListTasksByEvent(eventID string) ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT `+taskColumns+` FROM tasks WHERE event_id = ? ORDER BY position, created_at
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by event: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func taskArgs(t *models.Task) ([]any, error) {
	deps, err := encodeJSON(t.Dependencies)
	if err != nil {
		return nil, err
	}
	blockers, err := encodeJSON(t.Blockers)
	if err != nil {
		return nil, err
	}
	subtasks, err := encodeJSON(t.Subtasks)
	if err != nil {
		return nil, err
	}
	var due any
	if t.DueDate != nil {
		due = t.DueDate.Format(models.DateLayout)
	}
	return []any{
		t.ID, t.EventID, t.Title, t.Description, string(t.Status), int(t.Priority), due, t.Assignee,
		deps, blockers, subtasks, string(t.Category), t.Document, t.Progress, t.ProgressText, t.Summary,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), nullableTime(t.CompletedAt),
	}, nil
}

func scanTask(r rowScanner) (*models.Task, error) {
	var t models.Task
	var status, category, createdAt, updatedAt string
	var priority int
	var due, deps, blockers, subtasks, completedAt sql.NullString

	if err := r.Scan(&t.ID, &t.EventID, &t.Title, &t.Description, &status, &priority, &due, &t.Assignee,
		&deps, &blockers, &subtasks, &category, &t.Document, &t.Progress, &t.ProgressText, &t.Summary,
		&createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}

	t.Status = models.TaskStatus(status)
	t.Priority = models.Priority(priority)
	t.Category = models.AgentCategory(category)
	if due.Valid {
		if d, err := time.Parse(models.DateLayout, due.String); err == nil {
			t.DueDate = &d
		}
	}

	var err error
	if t.Dependencies, err = decodeJSON[string](deps); err != nil {
		return nil, fmt.Errorf("decode dependencies: %w", err)
	}
	if t.Blockers, err = decodeJSON[string](blockers); err != nil {
		return nil, fmt.Errorf("decode blockers: %w", err)
	}
	if t.Subtasks, err = decodeJSON[models.Subtask](subtasks); err != nil {
		return nil, fmt.Errorf("decode subtasks: %w", err)
	}

	t.CreatedAt, _ = parseTime(createdAt)
	t.UpdatedAt, _ = parseTime(updatedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}
