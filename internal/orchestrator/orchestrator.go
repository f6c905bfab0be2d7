package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ShayCichocki/gala/internal/api"
	"github.com/ShayCichocki/gala/internal/conversation"
	apperrors "github.com/ShayCichocki/gala/internal/errors"
	"github.com/ShayCichocki/gala/internal/logging"
	"github.com/ShayCichocki/gala/internal/state"
	"github.com/ShayCichocki/gala/internal/tools"
	"github.com/ShayCichocki/gala/pkg/models"
)

// ErrAlreadyRunning is returned by Start while a task loop is active.
var ErrAlreadyRunning = errors.New("orchestrator is already running")

// Resolution reports what HandleUserResponse did.
type Resolution struct {
	// Accepted is false for unknown or already resolved notifications.
	Accepted bool
	// TaskID is the task that was unblocked, if any.
	TaskID string
	// Resumed is true when the task loop was restarted.
	Resumed bool
}

// Orchestrator supervises AI work for one event. It runs at most one task
// loop at a time; tasks are executed strictly one after another.
type Orchestrator struct {
	eventID string
	store   state.Store
	gateway api.Gateway
	exec    *Executor
	cache   *conversation.Cache
	opts    orchestratorOptions
	log     *logging.Logger

	mu            sync.Mutex
	state         State
	run           *models.Run
	event         *models.Event
	activeTaskID  string
	running       bool
	stopRequested bool
	resumePending bool
	cancel        context.CancelFunc
	done          chan struct{}

	// spawn runs a resumed loop in the background. It reports false when
	// the loop may not start.
	spawn func(fn func()) bool
}

// New creates an orchestrator for eventID. gateway may be nil, in which case
// Start fails with ErrGatewayNotConfigured.
func New(store state.Store, gateway api.Gateway, eventID string, opts ...Option) (*Orchestrator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cache := o.cache
	if cache == nil {
		var err error
		cache, err = conversation.NewCache(o.cacheSize, HistoryLoader(store))
		if err != nil {
			return nil, err
		}
	}

	exec, err := NewExecutor(store, gateway, cache, o)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	close(done)
	return &Orchestrator{
		eventID: eventID,
		store:   store,
		gateway: gateway,
		exec:    exec,
		cache:   cache,
		opts:    o,
		log:     logging.Component("orchestrator"),
		state:   StateIdle,
		done:    done,
		spawn: func(fn func()) bool {
			go fn()
			return true
		},
	}, nil
}

// HistoryLoader rebuilds task histories from the message log.
func HistoryLoader(store state.MessageStore) conversation.Loader {
	return func(taskID string) (conversation.History, error) {
		msgs, err := store.ListMessagesByTask(taskID)
		if err != nil {
			return nil, err
		}
		return conversation.Rebuild(msgs)
	}
}

// EventID returns the event this orchestrator drives.
func (o *Orchestrator) EventID() string {
	return o.eventID
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Running reports whether a task loop is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Run returns a copy of the current run record, if any.
func (o *Orchestrator) Run() *models.Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return nil
	}
	r := *o.run
	return &r
}

// Start creates a run and executes the task loop until every task is done,
// all remaining work waits on a human, Stop is called or ctx is cancelled.
// It blocks for the duration of the loop. A nil error is returned for
// COMPLETED, WAITING_FOR_USER and stopped runs.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.gateway == nil {
		return apperrors.ErrGatewayNotConfigured
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	event, err := o.store.GetEvent(o.eventID)
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("load event %s: %w", o.eventID, err)
	}
	run := &models.Run{
		ID:        uuid.NewString(),
		EventID:   o.eventID,
		Status:    models.RunStatusRunning,
		StartedAt: o.opts.now(),
	}
	if err := o.store.CreateRun(run); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("create run: %w", err)
	}
	o.event = event
	o.run = run
	o.stopRequested = false
	loopCtx := o.beginLocked(ctx)
	o.mu.Unlock()

	o.log.InfoCtx("run started", map[string]any{"event_id": o.eventID, "run_id": run.ID})
	o.transition(StateExecuting, models.RunStatusRunning, "")
	return o.loop(loopCtx)
}

// beginLocked marks the loop active and returns its context.
func (o *Orchestrator) beginLocked(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	o.running = true
	o.resumePending = false
	o.cancel = cancel
	o.done = make(chan struct{})
	o.opts.metrics.RunStarted()
	return ctx
}

// endLoop marks the loop inactive. An answer that arrived while the loop was
// settling into WAITING_FOR_USER restarts it.
func (o *Orchestrator) endLoop() {
	o.mu.Lock()
	o.running = false
	o.activeTaskID = ""
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	close(o.done)
	o.opts.metrics.RunFinished()

	restart := o.resumePending && o.canResumeLocked()
	o.resumePending = false
	var ctx context.Context
	if restart {
		ctx = o.resumeLocked(context.Background())
	}
	o.mu.Unlock()

	if restart {
		o.startResumed(ctx)
	}
}

func (o *Orchestrator) canResumeLocked() bool {
	return o.state == StateWaitingForUser && !o.stopRequested && o.run != nil && o.gateway != nil
}

// resumeLocked reopens the current run for another pass of the loop.
func (o *Orchestrator) resumeLocked(parent context.Context) context.Context {
	o.run.Status = models.RunStatusRunning
	o.run.CompletedAt = nil
	return o.beginLocked(parent)
}

func (o *Orchestrator) startResumed(ctx context.Context) bool {
	o.log.InfoCtx("resuming run", map[string]any{"event_id": o.eventID})
	o.transition(StateExecuting, models.RunStatusRunning, "")
	started := o.spawn(func() {
		if err := o.loop(ctx); err != nil {
			o.log.ErrorCtx("resumed run failed", map[string]any{"event_id": o.eventID, "error": err})
		}
	})
	if !started {
		o.log.WarnCtx("resume refused", map[string]any{"event_id": o.eventID})
		o.transition(StateWaitingForUser, models.RunStatusPaused, "")
		o.endLoop()
	}
	return started
}

// Stop asks the loop to stop at its next boundary. An in-flight model call
// finishes first. While WAITING_FOR_USER it moves the orchestrator to IDLE
// so a later response does not resume the loop.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopRequested = true
	if o.cancel != nil {
		o.cancel()
	}
	waiting := !o.running && o.state == StateWaitingForUser
	o.mu.Unlock()

	if waiting {
		o.transition(StateIdle, models.RunStatusPaused, "")
	}
	o.log.InfoCtx("stop requested", map[string]any{"event_id": o.eventID})
}

// Wait blocks until the current loop, if any, has returned.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop is the single thread of control for the event.
func (o *Orchestrator) loop(ctx context.Context) (err error) {
	defer o.endLoop()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("orchestrator panic: %v", p)
			o.fail(err)
		}
	}()

	for {
		if ctx.Err() != nil {
			o.log.InfoCtx("run stopped", map[string]any{"event_id": o.eventID})
			o.transition(StateIdle, models.RunStatusPaused, "")
			return nil
		}

		tasks, err := o.store.ListTasksByEvent(o.eventID)
		if err != nil {
			err = fmt.Errorf("list tasks: %w", err)
			o.fail(err)
			return err
		}

		next := SelectNext(tasks, o.opts.now(), o.opts.weights)
		if next == nil {
			if allDone(tasks) {
				o.transition(StateCompleted, models.RunStatusCompleted, "")
			} else {
				o.transition(StateWaitingForUser, models.RunStatusPaused, "")
			}
			return nil
		}

		o.mu.Lock()
		o.activeTaskID = next.ID
		run, event := o.run, o.event
		o.mu.Unlock()
		o.emitStatus()

		outcome := o.exec.Execute(ctx, run, event, next, tasks)
		o.opts.metrics.IncTaskOutcome(outcome)
		o.log.DebugCtx("task step finished", map[string]any{"task_id": next.ID, "outcome": string(outcome)})

		o.mu.Lock()
		o.activeTaskID = ""
		o.mu.Unlock()
	}
}

// HandleUserResponse resolves a notification with the organizer's answer,
// unblocks its task and, if the orchestrator was waiting for the user,
// resumes the task loop in the background. Unknown or already resolved ids
// are logged and ignored.
func (o *Orchestrator) HandleUserResponse(ctx context.Context, notificationID, response string) (Resolution, error) {
	n, err := o.store.ResolveNotification(notificationID, response, o.opts.now())
	switch {
	case errors.Is(err, state.ErrNotFound), errors.Is(err, state.ErrAlreadyResolved):
		o.log.WarnCtx("ignoring response", map[string]any{"notification_id": notificationID, "reason": err.Error()})
		return Resolution{}, nil
	case err != nil:
		return Resolution{}, fmt.Errorf("resolve notification: %w", err)
	}

	res := Resolution{Accepted: true}
	if n.Type != models.NotificationInputNeeded || n.TaskID == "" {
		return res, nil
	}
	if n.EventID != o.eventID {
		o.log.WarnCtx("notification belongs to another event", map[string]any{"notification_id": n.ID, "event_id": n.EventID})
		return res, nil
	}

	task, err := o.store.GetTask(n.TaskID)
	if err != nil {
		return res, fmt.Errorf("load task %s: %w", n.TaskID, err)
	}
	res.TaskID = task.ID

	task.Status = models.TaskStatusInProgress
	task.ProgressText = "Organizer answered: " + response
	o.exec.saveTask(task)

	o.answerInHistory(n, task, response)

	o.mu.Lock()
	if o.running {
		// The loop picks the task up on its next selection, or restarts
		// itself if it is just settling into WAITING_FOR_USER.
		o.resumePending = true
		o.mu.Unlock()
		return res, nil
	}
	resume := o.canResumeLocked()
	var loopCtx context.Context
	if resume {
		loopCtx = o.resumeLocked(context.WithoutCancel(ctx))
	}
	o.mu.Unlock()

	if resume {
		res.Resumed = o.startResumed(loopCtx)
	}
	return res, nil
}

// answerInHistory records the answer as the result of the request_user_input
// call that raised n, closing sibling calls as not executed.
func (o *Orchestrator) answerInHistory(n *models.Notification, task *models.Task, response string) {
	runID := n.RunID
	if runID == "" {
		if latest, err := o.store.LatestRun(o.eventID); err == nil {
			runID = latest.ID
		}
	}

	history, err := o.cache.Get(task.ID)
	if err != nil {
		o.log.ErrorCtx("could not load history", map[string]any{"task_id": task.ID, "error": err})
	}

	callID := conversation.ToolCallID(n.ToolCallID)
	if _, ok := history.FindCall(callID); !ok || callID == "" {
		callID, ok = history.LastCallID(tools.RequestUserInput)
		if !ok {
			callID = ""
		}
	}

	var batch conversation.ToolResultBatch
	if callID != "" {
		batch, err = history.AnswerCall(callID, response)
		if err != nil {
			o.log.WarnCtx("could not correlate answer", map[string]any{"task_id": task.ID, "call_id": string(callID), "error": err})
			callID = ""
		}
	}

	if runID == "" {
		o.log.WarnCtx("no run to attach the answer to", map[string]any{"task_id": task.ID})
	}
	if callID == "" {
		turn := conversation.TextTurn{Role: conversation.RoleUser, Text: response}
		o.cache.Put(task.ID, history.Append(turn))
		if runID != "" {
			msg := &models.Message{RunID: runID, TaskID: task.ID, Role: models.RoleUser, Content: response}
			o.exec.persist(msg)
			o.exec.observer.ChatMessage(*msg)
		}
		return
	}

	o.cache.Put(task.ID, history.AppendResults(batch))
	if runID == "" {
		return
	}
	for _, r := range batch.Results {
		if r.CallID == callID {
			msg := &models.Message{RunID: runID, TaskID: task.ID, Role: models.RoleUser, Content: response, ToolCallID: string(callID)}
			o.exec.persist(msg)
			o.exec.observer.ChatMessage(*msg)
			continue
		}
		o.exec.persist(&models.Message{
			RunID:      runID,
			TaskID:     task.ID,
			Role:       models.RoleToolResult,
			ToolCallID: string(r.CallID),
			ToolResult: r.Content,
			IsError:    r.IsError,
		})
	}
}

// Status returns the current aggregate snapshot.
func (o *Orchestrator) Status() StatusSnapshot {
	o.mu.Lock()
	snap := StatusSnapshot{EventID: o.eventID, State: o.state, ActiveTaskID: o.activeTaskID}
	if o.run != nil {
		snap.RunID = o.run.ID
	}
	o.mu.Unlock()

	tasks, err := o.store.ListTasksByEvent(o.eventID)
	if err != nil {
		o.log.WarnCtx("could not count tasks", map[string]any{"event_id": o.eventID, "error": err})
		return snap
	}
	snap.DoneCount, snap.TotalCount, snap.BlockedCount = taskCounts(tasks)
	return snap
}

func (o *Orchestrator) emitStatus() {
	o.opts.observer.StatusChanged(o.Status())
}

// transition moves to s, persists the run status and emits a snapshot.
func (o *Orchestrator) transition(s State, runStatus models.RunStatus, cause string) {
	o.mu.Lock()
	o.state = s
	run := o.run
	if run != nil {
		run.Status = runStatus
		run.Error = cause
		if runStatus.Terminal() {
			now := o.opts.now()
			run.CompletedAt = &now
		}
	}
	var saved *models.Run
	if run != nil {
		copied := *run
		saved = &copied
	}
	o.mu.Unlock()

	if saved != nil {
		if err := o.store.UpdateRun(saved); err != nil {
			o.log.ErrorCtx("could not persist run", map[string]any{"run_id": saved.ID, "error": err})
		}
	}
	o.opts.metrics.IncTransition(s)
	o.log.InfoCtx("state changed", map[string]any{"event_id": o.eventID, "state": string(s)})
	o.emitStatus()
}

// fail moves the run to FAILED and raises an error notification.
func (o *Orchestrator) fail(err error) {
	o.log.ErrorCtx("run failed", map[string]any{"event_id": o.eventID, "error": err})
	o.transition(StateFailed, models.RunStatusFailed, err.Error())

	o.mu.Lock()
	runID := ""
	if o.run != nil {
		runID = o.run.ID
	}
	o.mu.Unlock()

	o.exec.notify(&models.Notification{
		EventID: o.eventID,
		RunID:   runID,
		Type:    models.NotificationError,
		Title:   "Run failed",
		Message: err.Error(),
	})
}
