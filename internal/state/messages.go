package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/gala/pkg/models"
)

const messageColumns = `id, run_id, task_id, role, content, tool_name, tool_call_id, tool_input,
	tool_result, is_error, created_at`

// InsertMessage appends a message to the audit log. Messages are never
// updated; insertion order is the replay order.
func (db *DB) InsertMessage(m *models.Message) error {
	var input any
	if len(m.ToolInput) > 0 {
		input = string(m.ToolInput)
	}
	_, err := db.Exec(`
		INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.RunID, nullString(m.TaskID), string(m.Role), m.Content, m.ToolName, m.ToolCallID, input,
		m.ToolResult, boolToInt(m.IsError), formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessagesByTask returns a task's messages across all runs in
// insertion order.
func (db *DB) ListMessagesByTask(taskID string) ([]models.Message, error) {
	return db.listMessages(`SELECT `+messageColumns+` FROM messages WHERE task_id = ? ORDER BY seq`, taskID)
}

// ListMessagesByRun returns a run's messages in insertion order.
func (db *DB) ListMessagesByRun(runID string) ([]models.Message, error) {
	return db.listMessages(`SELECT `+messageColumns+` FROM messages WHERE run_id = ? ORDER BY seq`, runID)
}

func (db *DB) listMessages(query string, args ...any) ([]models.Message, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var role, createdAt string
		var taskID, input sql.NullString
		var isError int
		if err := rows.Scan(&m.ID, &m.RunID, &taskID, &role, &m.Content, &m.ToolName, &m.ToolCallID,
			&input, &m.ToolResult, &isError, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.TaskID = taskID.String
		m.Role = models.MessageRole(role)
		if input.Valid && input.String != "" {
			m.ToolInput = json.RawMessage(input.String)
		}
		m.IsError = isError != 0
		m.CreatedAt, _ = parseTime(createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
