package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/gala/internal/logging"
	"github.com/ShayCichocki/gala/pkg/models"
)

// EventEmitter is an Observer that forwards events to a buffered channel,
// for consumers such as the CLI live view.
type EventEmitter struct {
	events       chan OrchestratorEvent
	droppedCount atomic.Uint64
	closeOnce    sync.Once
	closed       atomic.Bool
	log          *logging.Logger
}

var _ Observer = (*EventEmitter)(nil)

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan OrchestratorEvent, bufferSize),
		log:    logging.Component("orchestrator"),
	}
}

// Emit sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *EventEmitter) Emit(event OrchestratorEvent) {
	if e.closed.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	// Give the receiver a chance to drain.
	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			e.log.WarnCtx("event channel full, dropped event", map[string]any{"dropped_total": count, "type": string(event.Type)})
		}
	}
}

func (e *EventEmitter) TaskUpdated(task models.Task) {
	e.Emit(OrchestratorEvent{Type: EventTaskUpdated, Task: &task})
}

func (e *EventEmitter) NotificationCreated(n models.Notification) {
	e.Emit(OrchestratorEvent{Type: EventNotificationCreated, Notification: &n})
}

func (e *EventEmitter) ChatMessage(m models.Message) {
	e.Emit(OrchestratorEvent{Type: EventChatMessage, Message: &m})
}

func (e *EventEmitter) StatusChanged(s StatusSnapshot) {
	e.Emit(OrchestratorEvent{Type: EventStatusChanged, Status: &s})
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan OrchestratorEvent {
	return e.events
}

// Close closes the events channel. Emitting after Close is a no-op; callers
// must make sure no emit is in flight.
func (e *EventEmitter) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.events)
	})
}
