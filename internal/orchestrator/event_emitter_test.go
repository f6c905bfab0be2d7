package orchestrator

import (
	"testing"

	"github.com/ShayCichocki/gala/pkg/models"
)

func TestEventEmitter_DeliversInOrder(t *testing.T) {
	e := NewEventEmitter(4)
	e.TaskUpdated(models.Task{ID: "t1"})
	e.StatusChanged(StatusSnapshot{State: StateExecuting})
	e.Close()

	var got []EventType
	for ev := range e.Events() {
		if ev.Timestamp.IsZero() {
			t.Error("event without timestamp")
		}
		got = append(got, ev.Type)
	}
	if len(got) != 2 || got[0] != EventTaskUpdated || got[1] != EventStatusChanged {
		t.Errorf("events = %v", got)
	}
}

func TestEventEmitter_DropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1)
	e.ChatMessage(models.Message{ID: "m1"})
	e.ChatMessage(models.Message{ID: "m2"})

	if e.DroppedCount() != 1 {
		t.Errorf("DroppedCount = %d, want 1", e.DroppedCount())
	}
	ev := <-e.Events()
	if ev.Message == nil || ev.Message.ID != "m1" {
		t.Errorf("kept event = %+v, want m1", ev)
	}
}

func TestEventEmitter_EmitAfterClose(t *testing.T) {
	e := NewEventEmitter(1)
	e.Close()
	e.Close()
	e.NotificationCreated(models.Notification{ID: "n1"})
	if _, ok := <-e.Events(); ok {
		t.Error("received an event after Close")
	}
}

func TestMultiObserver_FansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	obs := MultiObserver(a.observer(), nil, b.observer())
	obs.StatusChanged(StatusSnapshot{State: StateCompleted})

	if a.count(EventStatusChanged) != 1 || b.count(EventStatusChanged) != 1 {
		t.Error("status not delivered to every observer")
	}
	if _, ok := MultiObserver(nil).(NopObserver); !ok {
		t.Error("MultiObserver(nil) should be a no-op")
	}
}
