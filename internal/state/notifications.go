package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/gala/pkg/models"
)

// ErrAlreadyResolved is returned by ResolveNotification for a notification
// that has been resolved before.
var ErrAlreadyResolved = errors.New("notification already resolved")

const notificationColumns = `id, event_id, task_id, run_id, type, title, message, context, suggestions,
	tool_call_id, is_read, is_resolved, response, created_at, resolved_at`

// CreateNotification inserts a new notification.
func (db *DB) CreateNotification(n *models.Notification) error {
	suggestions, err := encodeJSON(n.Suggestions)
	if err != nil {
		return fmt.Errorf("encode suggestions: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.EventID, nullString(n.TaskID), nullString(n.RunID), string(n.Type), n.Title, n.Message,
		n.Context, suggestions, n.ToolCallID, boolToInt(n.IsRead), boolToInt(n.IsResolved), n.Response,
		formatTime(n.CreatedAt), nullableTime(n.ResolvedAt))
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// GetNotification retrieves a notification by ID.
func (db *DB) GetNotification(id string) (*models.Notification, error) {
	row := db.QueryRow(`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// ListNotificationsByEvent returns an event's notifications, newest first.
// With unresolvedOnly set, resolved ones are left out.
func (db *DB) ListNotificationsByEvent(eventID string, unresolvedOnly bool) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE event_id = ?`
	if unresolvedOnly {
		query += ` AND is_resolved = 0`
	}
	query += ` ORDER BY rowid DESC`

	rows, err := db.Query(query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags a notification as seen.
func (db *DB) MarkNotificationRead(id string) error {
	res, err := db.Exec("UPDATE notifications SET is_read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// ResolveNotification records the response and marks the notification
// resolved. The update only applies to an unresolved row, so exactly one
// caller wins; later calls get ErrAlreadyResolved.
func (db *DB) ResolveNotification(id, response string, at time.Time) (*models.Notification, error) {
	var resolved *models.Notification
	err := db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE notifications SET is_resolved = 1, is_read = 1, response = ?, resolved_at = ?
			WHERE id = ? AND is_resolved = 0
		`, response, formatTime(at), id)
		if err != nil {
			return fmt.Errorf("resolve notification: %w", err)
		}

		changed, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}

		row := tx.QueryRow(`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
		n, err := scanNotification(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("notification %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get notification: %w", err)
		}
		if changed == 0 {
			return fmt.Errorf("notification %s: %w", id, ErrAlreadyResolved)
		}
		resolved = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanNotification(r rowScanner) (*models.Notification, error) {
	var n models.Notification
	var typ, createdAt string
	var taskID, runID, suggestions, resolvedAt sql.NullString
	var isRead, isResolved int

	if err := r.Scan(&n.ID, &n.EventID, &taskID, &runID, &typ, &n.Title, &n.Message, &n.Context,
		&suggestions, &n.ToolCallID, &isRead, &isResolved, &n.Response, &createdAt, &resolvedAt); err != nil {
		return nil, err
	}

	n.TaskID = taskID.String
	n.RunID = runID.String
	n.Type = models.NotificationType(typ)
	n.IsRead = isRead != 0
	n.IsResolved = isResolved != 0

	var err error
	if n.Suggestions, err = decodeJSON[string](suggestions); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	n.CreatedAt, _ = parseTime(createdAt)
	n.ResolvedAt = parseNullableTime(resolvedAt)
	return &n, nil
}
