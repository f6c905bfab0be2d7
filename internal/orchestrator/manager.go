package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ShayCichocki/gala/internal/api"
	"github.com/ShayCichocki/gala/internal/conversation"
	apperrors "github.com/ShayCichocki/gala/internal/errors"
	"github.com/ShayCichocki/gala/internal/logging"
	"github.com/ShayCichocki/gala/internal/state"
	"github.com/ShayCichocki/gala/pkg/models"
)

// StopWatcher delivers out-of-process stop requests. *signals.Watcher
// satisfies it.
type StopWatcher interface {
	Watch(eventID string, onStop func())
	Unwatch(eventID string)
}

// Manager owns one Orchestrator per event and shares the process-wide
// collaborators between them. Events are fully isolated from each other.
type Manager struct {
	store   state.Store
	gateway api.Gateway
	opts    []Option
	cache   *conversation.Cache
	watcher StopWatcher
	log     *logging.Logger

	mu     sync.Mutex
	orchs  map[string]*Orchestrator
	wg     sync.WaitGroup
	closed bool
}

// NewManager creates a manager. opts are applied to every orchestrator it
// creates; a shared history cache is added unless one is given.
func NewManager(store state.Store, gateway api.Gateway, cacheSize int, opts ...Option) (*Manager, error) {
	cache, err := conversation.NewCache(cacheSize, HistoryLoader(store))
	if err != nil {
		return nil, err
	}
	all := append([]Option{WithHistoryCache(cache)}, opts...)
	return &Manager{
		store:   store,
		gateway: gateway,
		opts:    all,
		cache:   cache,
		log:     logging.Component("manager"),
		orchs:   make(map[string]*Orchestrator),
	}, nil
}

// SetStopWatcher routes stop signals to the managed orchestrators. Each
// event stays watched for as long as the manager holds it, so a loop resumed
// by a user response can be stopped too.
func (m *Manager) SetStopWatcher(w StopWatcher) {
	m.mu.Lock()
	m.watcher = w
	orchs := make([]*Orchestrator, 0, len(m.orchs))
	for _, o := range m.orchs {
		orchs = append(orchs, o)
	}
	m.mu.Unlock()

	if w == nil {
		return
	}
	for _, o := range orchs {
		w.Watch(o.EventID(), o.Stop)
	}
}

// Get returns the orchestrator for eventID, creating it on first use.
func (m *Manager) Get(eventID string) (*Orchestrator, error) {
	m.mu.Lock()
	if o, ok := m.orchs[eventID]; ok {
		m.mu.Unlock()
		return o, nil
	}
	o, err := New(m.store, m.gateway, eventID, m.opts...)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	o.spawn = m.spawn
	m.orchs[eventID] = o
	w := m.watcher
	m.mu.Unlock()

	if w != nil {
		w.Watch(eventID, o.Stop)
	}
	return o, nil
}

// Run starts eventID and blocks until its loop returns.
func (m *Manager) Run(ctx context.Context, eventID string) error {
	o, err := m.Get(eventID)
	if err != nil {
		return err
	}
	return o.Start(ctx)
}

// StartAsync starts eventID in the background. Conditions that would stop
// the run from starting are checked first and returned; later failures are
// logged.
func (m *Manager) StartAsync(ctx context.Context, eventID string) error {
	if m.gateway == nil {
		return apperrors.ErrGatewayNotConfigured
	}
	if _, err := m.store.GetEvent(eventID); err != nil {
		return fmt.Errorf("load event %s: %w", eventID, err)
	}
	o, err := m.Get(eventID)
	if err != nil {
		return err
	}
	if o.Running() {
		return ErrAlreadyRunning
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("manager is shut down")
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		if err := o.Start(ctx); err != nil {
			m.log.ErrorCtx("run ended with error", map[string]any{"event_id": eventID, "error": err})
		}
	}()
	return nil
}

// Stop stops eventID if it is managed here.
func (m *Manager) Stop(eventID string) bool {
	m.mu.Lock()
	o, ok := m.orchs[eventID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	o.Stop()
	return true
}

// HandleUserResponse routes an answer to the orchestrator of the
// notification's event.
func (m *Manager) HandleUserResponse(ctx context.Context, notificationID, response string) (Resolution, error) {
	n, err := m.store.GetNotification(notificationID)
	if errors.Is(err, state.ErrNotFound) {
		m.log.WarnCtx("ignoring response for unknown notification", map[string]any{"notification_id": notificationID})
		return Resolution{}, nil
	}
	if err != nil {
		return Resolution{}, err
	}
	o, err := m.Get(n.EventID)
	if err != nil {
		return Resolution{}, err
	}
	return o.HandleUserResponse(ctx, notificationID, response)
}

// Status returns the snapshot for eventID.
func (m *Manager) Status(eventID string) (StatusSnapshot, error) {
	o, err := m.Get(eventID)
	if err != nil {
		return StatusSnapshot{}, err
	}
	return o.Status(), nil
}

// RunningEvents lists the events with an active loop.
func (m *Manager) RunningEvents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, o := range m.orchs {
		if o.Running() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ResumeCandidates returns events that have an eligible AI task and no
// active loop here.
func (m *Manager) ResumeCandidates() ([]string, error) {
	events, err := m.store.ListEvents()
	if err != nil {
		return nil, err
	}
	running := make(map[string]bool)
	for _, id := range m.RunningEvents() {
		running[id] = true
	}

	var out []string
	for _, e := range events {
		if running[e.ID] {
			continue
		}
		tasks, err := m.store.ListTasksByEvent(e.ID)
		if err != nil {
			return nil, err
		}
		if hasEligible(tasks) {
			out = append(out, e.ID)
		}
	}
	return out, nil
}

// Shutdown stops every loop and waits for them to return.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	orchs := make([]*Orchestrator, 0, len(m.orchs))
	for _, o := range m.orchs {
		orchs = append(orchs, o)
	}
	m.mu.Unlock()

	for _, o := range orchs {
		if o.Running() {
			o.Stop()
		}
	}
	m.unwatchAll(orchs)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		for _, o := range orchs {
			_ = o.Wait(ctx)
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn runs a resumed loop under the manager's wait group. Nothing new
// starts once Shutdown has begun.
func (m *Manager) spawn(fn func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		fn()
	}()
	return true
}

func (m *Manager) unwatchAll(orchs []*Orchestrator) {
	m.mu.Lock()
	w := m.watcher
	m.mu.Unlock()
	if w == nil {
		return
	}
	for _, o := range orchs {
		w.Unwatch(o.EventID())
	}
}

func hasEligible(tasks []models.Task) bool {
	byID := models.IndexTasks(tasks)
	for i := range tasks {
		if Eligible(&tasks[i], byID) {
			return true
		}
	}
	return false
}
