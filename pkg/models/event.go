package models

import "time"

// DateLayout is the calendar date format used for event and due dates.
const DateLayout = "2006-01-02"

// Event is the occasion being planned. It owns tasks, runs and notifications.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location,omitempty"`
	GuestCount  int       `json:"guest_count,omitempty"`
	Budget      float64   `json:"budget,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// EventFormData is what a user fills in when creating an event.
// It feeds the one-shot planning call.
type EventFormData struct {
	Name         string   `json:"name" yaml:"name"`
	Type         string   `json:"type" yaml:"type"`
	Date         string   `json:"date" yaml:"date"`
	Location     string   `json:"location,omitempty" yaml:"location"`
	GuestCount   int      `json:"guest_count,omitempty" yaml:"guest_count"`
	Budget       float64  `json:"budget,omitempty" yaml:"budget"`
	Description  string   `json:"description,omitempty" yaml:"description"`
	Requirements []string `json:"requirements,omitempty" yaml:"requirements"`
}

// ParsedDate parses the form date.
func (f EventFormData) ParsedDate() (time.Time, error) {
	return time.Parse(DateLayout, f.Date)
}

// ToEvent converts the form into an Event with the given id.
func (f EventFormData) ToEvent(id string, now time.Time) (Event, error) {
	date, err := f.ParsedDate()
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:          id,
		Name:        f.Name,
		Type:        f.Type,
		Date:        date,
		Location:    f.Location,
		GuestCount:  f.GuestCount,
		Budget:      f.Budget,
		Description: f.Description,
		CreatedAt:   now,
	}, nil
}
