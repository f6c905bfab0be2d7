package signals

import (
	"os"
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("stop handler was not called")
	}
}

func TestWatcher_FiresOnSendStop(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	stopped := make(chan struct{}, 4)
	w.Watch("evt-1", func() { stopped <- struct{}{} })

	if err := SendStop(dir, "evt-1"); err != nil {
		t.Fatalf("SendStop: %v", err)
	}
	waitFor(t, stopped)

	// The signal is consumed.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(StopPath(dir, "evt-1")); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stop file was not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcher_PendingSignalFiresOnWatch(t *testing.T) {
	dir := t.TempDir()
	if err := SendStop(dir, "evt-2"); err != nil {
		t.Fatalf("SendStop: %v", err)
	}

	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	stopped := make(chan struct{}, 4)
	w.Watch("evt-2", func() { stopped <- struct{}{} })
	waitFor(t, stopped)
}

func TestWatcher_IgnoresOtherEvents(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	stopped := make(chan struct{}, 4)
	w.Watch("evt-1", func() { stopped <- struct{}{} })

	if err := SendStop(dir, "evt-other"); err != nil {
		t.Fatalf("SendStop: %v", err)
	}
	select {
	case <-stopped:
		t.Fatal("handler fired for a different event")
	case <-time.After(200 * time.Millisecond):
	}

	// Unregistered signals stay on disk for their own process.
	if _, err := os.Stat(StopPath(dir, "evt-other")); err != nil {
		t.Errorf("foreign stop file should remain: %v", err)
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	if err := Clear(dir, "missing"); err != nil {
		t.Errorf("Clear on a missing file should succeed: %v", err)
	}
	if err := SendStop(dir, "evt-1"); err != nil {
		t.Fatal(err)
	}
	if err := Clear(dir, "evt-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(StopPath(dir, "evt-1")); !os.IsNotExist(err) {
		t.Error("stop file still present")
	}
}
