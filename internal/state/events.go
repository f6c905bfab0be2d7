package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/gala/pkg/models"
)

const eventColumns = `id, name, type, date, location, guest_count, budget, description, created_at`

// CreateEvent inserts a new event.
func (db *DB) CreateEvent(e *models.Event) error {
	_, err := db.Exec(`
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Name, e.Type, e.Date.Format(models.DateLayout), e.Location, e.GuestCount,
		e.Budget, e.Description, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (db *DB) GetEvent(id string) (*models.Event, error) {
	row := db.QueryRow(`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListEvents returns all events, soonest first.
func (db *DB) ListEvents() ([]models.Event, error) {
	rows, err := db.Query(`SELECT ` + eventColumns + ` FROM events ORDER BY date, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// DeleteEvent removes an event and, through foreign key cascades, all of
// its tasks, runs, messages and notifications.
func (db *DB) DeleteEvent(id string) error {
	res, err := db.Exec("DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*models.Event, error) {
	var e models.Event
	var date, createdAt string
	if err := r.Scan(&e.ID, &e.Name, &e.Type, &date, &e.Location, &e.GuestCount,
		&e.Budget, &e.Description, &createdAt); err != nil {
		return nil, err
	}
	e.Date, _ = time.Parse(models.DateLayout, date)
	e.CreatedAt, _ = parseTime(createdAt)
	return &e, nil
}
