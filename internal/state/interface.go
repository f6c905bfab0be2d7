package state

import (
	"io"
	"time"

	"github.com/ShayCichocki/gala/pkg/models"
)

// EventStore handles event persistence.
type EventStore interface {
	CreateEvent(e *models.Event) error
	GetEvent(id string) (*models.Event, error)
	ListEvents() ([]models.Event, error)
	DeleteEvent(id string) error
}

// TaskStore handles task persistence.
type TaskStore interface {
	CreateTask(t *models.Task) error
	CreateTasks(tasks []models.Task) error
	GetTask(id string) (*models.Task, error)
	UpdateTask(t *models.Task) error
	UpdateTaskProgress(id string, p TaskProgress) error
	UpdateTaskDocument(id, document string, at time.Time) error
	ListTasksByEvent(eventID string) ([]models.Task, error)
}

// RunStore handles run persistence.
type RunStore interface {
	CreateRun(r *models.Run) error
	GetRun(id string) (*models.Run, error)
	UpdateRun(r *models.Run) error
	ListRunsByEvent(eventID string) ([]models.Run, error)
	LatestRun(eventID string) (*models.Run, error)
}

// MessageStore handles the append-only message log.
type MessageStore interface {
	InsertMessage(m *models.Message) error
	ListMessagesByTask(taskID string) ([]models.Message, error)
	ListMessagesByRun(runID string) ([]models.Message, error)
}

// NotificationStore handles human-in-the-loop notifications.
type NotificationStore interface {
	CreateNotification(n *models.Notification) error
	GetNotification(id string) (*models.Notification, error)
	ListNotificationsByEvent(eventID string, unresolvedOnly bool) ([]models.Notification, error)
	MarkNotificationRead(id string) error
	ResolveNotification(id, response string, at time.Time) (*models.Notification, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// Store is everything the orchestrator, planner and HTTP surface need
// from persistence. Consumers depend on this rather than the SQLite DB.
type Store interface {
	io.Closer
	Migrator
	EventStore
	TaskStore
	RunStore
	MessageStore
	NotificationStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store             = (*DB)(nil)
	_ EventStore        = (*DB)(nil)
	_ TaskStore         = (*DB)(nil)
	_ RunStore          = (*DB)(nil)
	_ MessageStore      = (*DB)(nil)
	_ NotificationStore = (*DB)(nil)
)
