package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ShayCichocki/gala/pkg/models"
)

const runColumns = `id, event_id, status, started_at, completed_at, error`

// CreateRun inserts a new run.
func (db *DB) CreateRun(r *models.Run) error {
	_, err := db.Exec(`
		INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.EventID, string(r.Status), formatTime(r.StartedAt), nullableTime(r.CompletedAt), r.Error)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(id string) (*models.Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// UpdateRun writes a run's status, completion time and error.
func (db *DB) UpdateRun(r *models.Run) error {
	res, err := db.Exec(`
		UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?
	`, string(r.Status), nullableTime(r.CompletedAt), r.Error, r.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

// ListRunsByEvent returns an event's runs, newest first.
func (db *DB) ListRunsByEvent(eventID string) ([]models.Run, error) {
	return db.listRuns(`SELECT `+runColumns+` FROM runs WHERE event_id = ? ORDER BY rowid DESC`, eventID)
}

// LatestRun returns the most recently started run for an event.
func (db *DB) LatestRun(eventID string) (*models.Run, error) {
	runs, err := db.ListRunsByEvent(eventID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("runs for event %s: %w", eventID, ErrNotFound)
	}
	return &runs[0], nil
}

// ListRunsByStatus returns every run in the given status, oldest first.
func (db *DB) ListRunsByStatus(status models.RunStatus) ([]models.Run, error) {
	return db.listRuns(`SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY rowid`, string(status))
}

func (db *DB) listRuns(query string, args ...any) ([]models.Run, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func scanRun(r rowScanner) (*models.Run, error) {
	var run models.Run
	var status, startedAt string
	var completedAt sql.NullString
	if err := r.Scan(&run.ID, &run.EventID, &status, &startedAt, &completedAt, &run.Error); err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	run.StartedAt, _ = parseTime(startedAt)
	run.CompletedAt = parseNullableTime(completedAt)
	return &run, nil
}
