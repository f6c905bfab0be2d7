package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/gala/internal/api"
	"github.com/ShayCichocki/gala/internal/connector"
	"github.com/ShayCichocki/gala/internal/conversation"
	apperrors "github.com/ShayCichocki/gala/internal/errors"
	"github.com/ShayCichocki/gala/internal/files"
	"github.com/ShayCichocki/gala/internal/logging"
	"github.com/ShayCichocki/gala/internal/state"
	"github.com/ShayCichocki/gala/internal/tools"
	"github.com/ShayCichocki/gala/pkg/models"
)

// Outcome is the result of one executor invocation for a task.
type Outcome string

const (
	// OutcomeContinue leaves the task in progress for a later selection.
	OutcomeContinue Outcome = "continue"
	// OutcomeBlocked means the task waits on a human answer.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeComplete means the task was marked done.
	OutcomeComplete Outcome = "complete"
)

// Dispatcher routes non-built-in tool calls. *connector.Registry satisfies it.
type Dispatcher interface {
	AllTools() []tools.Spec
	Execute(ctx context.Context, name string, input json.RawMessage) connector.Result
}

var _ Dispatcher = (*connector.Registry)(nil)

const (
	startPrompt    = "Please begin working on the task: %s"
	continuePrompt = "Please continue working on the task: %s. When the work is finished call mark_task_complete; " +
		"if you need information from the organizer call request_user_input."
	danglingReason = "Not executed: the previous session ended before this tool call ran."
)

// taskRun is the per-invocation state shared by the built-in handlers.
type taskRun struct {
	run   *models.Run
	event *models.Event
	task  *models.Task
}

// builtinHandler runs one built-in call. A non-empty Outcome ends the batch;
// otherwise the returned result is handed back to the model.
type builtinHandler func(ctx context.Context, tr *taskRun, call conversation.ToolCall) (Outcome, conversation.ToolResult)

// Executor drives the bounded conversation for a single task.
type Executor struct {
	store       state.Store
	gateway     api.Gateway
	dispatcher  Dispatcher
	files       files.Writer
	observer    Observer
	metrics     *Metrics
	cache       *conversation.Cache
	maxRounds   int
	callTimeout time.Duration
	now         func() time.Time
	log         *logging.Logger
	builtins    map[string]builtinHandler
}

// NewExecutor wires an executor. The built-in handler table is checked
// against the advertised built-in specs.
func NewExecutor(store state.Store, gateway api.Gateway, cache *conversation.Cache, o orchestratorOptions) (*Executor, error) {
	e := &Executor{
		store:       store,
		gateway:     gateway,
		dispatcher:  o.dispatcher,
		files:       o.files,
		observer:    o.observer,
		metrics:     o.metrics,
		cache:       cache,
		maxRounds:   o.maxRounds,
		callTimeout: o.callTimeout,
		now:         o.now,
		log:         logging.Component("executor"),
	}
	e.builtins = map[string]builtinHandler{
		tools.RequestUserInput:   e.requestUserInput,
		tools.MarkTaskComplete:   e.markTaskComplete,
		tools.UpdateTaskProgress: e.updateTaskProgress,
		tools.WriteEventFile:     e.writeEventFile,
	}
	if err := checkBuiltins(e.builtins); err != nil {
		return nil, err
	}
	return e, nil
}

func checkBuiltins(handlers map[string]builtinHandler) error {
	advertised := tools.BuiltinNames()
	if len(advertised) != len(handlers) {
		return fmt.Errorf("built-in handlers %v do not match tools %v", sortedKeys(handlers), advertised)
	}
	for _, name := range advertised {
		if _, ok := handlers[name]; !ok {
			return fmt.Errorf("built-in handlers: no handler for %s", name)
		}
	}
	return nil
}

// Execute runs up to maxRounds model rounds on task. tasks is the event's
// current task list, used for the prompt. Only task is mutated.
func (e *Executor) Execute(ctx context.Context, run *models.Run, event *models.Event, task *models.Task, tasks []models.Task) Outcome {
	tr := &taskRun{run: run, event: event, task: task}

	task.Status = models.TaskStatusInProgress
	e.saveTask(task)

	snapshot := make([]models.Task, len(tasks))
	copy(snapshot, tasks)
	for i := range snapshot {
		if snapshot[i].ID == task.ID {
			snapshot[i] = *task
		}
	}
	system := api.BuildTaskSystemPrompt(*event, *task, snapshot)
	specs := e.toolSpecs()

	history, err := e.cache.Get(task.ID)
	if err != nil {
		e.log.ErrorCtx("could not load history", map[string]any{"task_id": task.ID, "error": err})
		history = nil
	}
	history = e.seed(tr, history)

	for round := 0; round < e.maxRounds; round++ {
		if ctx.Err() != nil {
			return OutcomeContinue
		}
		history = e.closeDangling(tr, history)

		resp, err := e.call(ctx, system, history, specs)
		if err != nil {
			e.recordModelError(tr, err)
			return OutcomeContinue
		}

		if entry := resp.Entry(); entry != nil {
			history = e.appendEntry(task.ID, history, entry)
			e.persistAssistant(tr, resp)
		}

		if len(resp.ToolCalls) == 0 {
			if resp.EndedTurn() {
				return OutcomeContinue
			}
			continue
		}

		outcome, results := e.runBatch(ctx, tr, resp.ToolCalls)
		history = e.appendResults(task.ID, history, results)
		if outcome != "" {
			return outcome
		}
	}

	e.log.InfoCtx("round bound reached", map[string]any{"task_id": task.ID, "rounds": e.maxRounds})
	return OutcomeContinue
}

// seed starts a fresh history or nudges a resumed one whose last turn was
// assistant prose, so the model is asked to continue rather than replying to
// itself.
func (e *Executor) seed(tr *taskRun, history conversation.History) conversation.History {
	var text string
	switch last := history.Last().(type) {
	case nil:
		text = fmt.Sprintf(startPrompt, tr.task.Title)
	case conversation.TextTurn:
		if last.Role != conversation.RoleAssistant {
			return history
		}
		text = fmt.Sprintf(continuePrompt, tr.task.Title)
	default:
		return history
	}

	history = e.appendEntry(tr.task.ID, history, conversation.TextTurn{Role: conversation.RoleUser, Text: text})
	e.persist(&models.Message{RunID: tr.run.ID, TaskID: tr.task.ID, Role: models.RoleUser, Content: text})
	return history
}

// closeDangling answers calls left without results, e.g. by a crash between
// the assistant turn and its results.
func (e *Executor) closeDangling(tr *taskRun, history conversation.History) conversation.History {
	closed, batch, ok := history.CloseDangling(danglingReason)
	if !ok {
		return history
	}
	e.cache.Put(tr.task.ID, closed)
	for _, r := range batch.Results {
		e.persist(&models.Message{
			RunID:      tr.run.ID,
			TaskID:     tr.task.ID,
			Role:       models.RoleToolResult,
			ToolCallID: string(r.CallID),
			ToolResult: r.Content,
			IsError:    true,
		})
	}
	return closed
}

func (e *Executor) call(ctx context.Context, system string, history conversation.History, specs []tools.Spec) (*api.Response, error) {
	// A stop request does not abort a call already in flight.
	callCtx := context.WithoutCancel(ctx)
	if e.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, e.callTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.gateway.Call(callCtx, system, history, specs)
	e.metrics.ObserveModelCall(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	e.metrics.AddTokens(resp.InputTokens, resp.OutputTokens)
	return resp, nil
}

// runBatch executes calls strictly in order. A built-in that returns an
// Outcome stops the batch; the remaining calls stay unanswered. A stop
// request does not interrupt the batch; it takes effect at the next round.
func (e *Executor) runBatch(ctx context.Context, tr *taskRun, calls []conversation.ToolCall) (Outcome, conversation.ToolResultBatch) {
	ctx = context.WithoutCancel(ctx)
	var batch conversation.ToolResultBatch
	for _, call := range calls {
		if handler, ok := e.builtins[call.Name]; ok {
			outcome, result := handler(ctx, tr, call)
			if outcome != "" {
				e.metrics.IncToolCall(call.Name, true)
				return outcome, batch
			}
			e.metrics.IncToolCall(call.Name, !result.IsError)
			e.persistResult(tr, call, result)
			batch.Results = append(batch.Results, result)
			continue
		}

		result := e.dispatch(ctx, call)
		e.metrics.IncToolCall(call.Name, !result.IsError)
		e.persistResult(tr, call, result)
		batch.Results = append(batch.Results, result)
	}
	return "", batch
}

func (e *Executor) dispatch(ctx context.Context, call conversation.ToolCall) conversation.ToolResult {
	var res connector.Result
	if e.dispatcher == nil {
		res = connector.Result{Success: false, Error: "unknown tool: " + call.Name}
	} else {
		res = e.dispatcher.Execute(ctx, call.Name, call.Input)
	}
	return conversation.ToolResult{CallID: call.ID, Content: res.JSON(), IsError: !res.Success}
}

func (e *Executor) toolSpecs() []tools.Spec {
	if e.dispatcher == nil {
		return tools.Builtins()
	}
	return e.dispatcher.AllTools()
}

// --- built-in handlers ---

type userInputArgs struct {
	Question    string   `json:"question"`
	Context     string   `json:"context"`
	Suggestions []string `json:"suggestions"`
}

func (e *Executor) requestUserInput(_ context.Context, tr *taskRun, call conversation.ToolCall) (Outcome, conversation.ToolResult) {
	var args userInputArgs
	if err := decodeArgs(call.Input, &args); err != nil || strings.TrimSpace(args.Question) == "" {
		return "", errorResult(call.ID, "request_user_input needs a non-empty question")
	}

	task := tr.task
	task.Status = models.TaskStatusBlocked
	task.ProgressText = "Waiting for organizer: " + args.Question
	e.saveTask(task)

	n := &models.Notification{
		EventID:     tr.event.ID,
		TaskID:      task.ID,
		RunID:       tr.run.ID,
		Type:        models.NotificationInputNeeded,
		Title:       "Input needed: " + task.Title,
		Message:     args.Question,
		Context:     args.Context,
		Suggestions: args.Suggestions,
		ToolCallID:  string(call.ID),
	}
	e.notify(n)
	e.log.InfoCtx("task blocked on user input", map[string]any{"task_id": task.ID, "notification_id": n.ID})
	return OutcomeBlocked, conversation.ToolResult{}
}

type completeArgs struct {
	Summary string `json:"summary"`
}

func (e *Executor) markTaskComplete(_ context.Context, tr *taskRun, call conversation.ToolCall) (Outcome, conversation.ToolResult) {
	var args completeArgs
	_ = decodeArgs(call.Input, &args)

	task := tr.task
	now := e.now()
	task.Status = models.TaskStatusDone
	task.Progress = 100
	task.Summary = args.Summary
	task.CompletedAt = &now
	e.saveTask(task)

	e.notify(&models.Notification{
		EventID: tr.event.ID,
		TaskID:  task.ID,
		RunID:   tr.run.ID,
		Type:    models.NotificationCompletion,
		Title:   "Task complete: " + task.Title,
		Message: args.Summary,
	})
	e.log.InfoCtx("task completed", map[string]any{"task_id": task.ID})
	return OutcomeComplete, conversation.ToolResult{}
}

type progressArgs struct {
	Progress   string `json:"progress"`
	Percentage *int   `json:"percentage"`
}

func (e *Executor) updateTaskProgress(_ context.Context, tr *taskRun, call conversation.ToolCall) (Outcome, conversation.ToolResult) {
	var args progressArgs
	if err := decodeArgs(call.Input, &args); err != nil {
		return "", errorResult(call.ID, "invalid update_task_progress input: "+err.Error())
	}

	task := tr.task
	task.ProgressText = args.Progress
	if args.Percentage != nil {
		task.Progress = models.ClampProgress(*args.Percentage)
	}
	e.saveTask(task)
	return "", conversation.ToolResult{CallID: call.ID, Content: "Progress updated."}
}

type writeFileArgs struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

func (e *Executor) writeEventFile(ctx context.Context, tr *taskRun, call conversation.ToolCall) (Outcome, conversation.ToolResult) {
	var args writeFileArgs
	if err := decodeArgs(call.Input, &args); err != nil {
		return "", errorResult(call.ID, "invalid write_event_file input: "+err.Error())
	}
	name := tools.SanitizeFilename(args.Filename)
	if e.files == nil {
		return "", errorResult(call.ID, fmt.Sprintf("Failed to write %s: file storage is not configured", name))
	}
	if err := e.files.Write(ctx, tr.event.ID, name, args.Content); err != nil {
		terr := &apperrors.ToolError{Tool: tools.WriteEventFile, Err: err}
		e.log.WarnCtx("event file write failed", map[string]any{"event_id": tr.event.ID, "file": name, "error": err})
		return "", errorResult(call.ID, fmt.Sprintf("Failed to write %s: %s", name, apperrors.FormatForModel(terr)))
	}
	return "", conversation.ToolResult{
		CallID:  call.ID,
		Content: fmt.Sprintf("Saved %s (%d bytes).", name, len(args.Content)),
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func errorResult(id conversation.ToolCallID, msg string) conversation.ToolResult {
	return conversation.ToolResult{CallID: id, Content: msg, IsError: true}
}

// --- persistence and observation ---

func (e *Executor) recordModelError(tr *taskRun, err error) {
	e.log.WarnCtx("model call failed", map[string]any{"task_id": tr.task.ID, "transient": apperrors.IsTransient(err), "error": err})
	msg := &models.Message{
		RunID:   tr.run.ID,
		TaskID:  tr.task.ID,
		Role:    models.RoleSystem,
		Content: "Model call failed: " + apperrors.FormatForModel(err),
		IsError: true,
	}
	e.persist(msg)
	e.observer.ChatMessage(*msg)
}

func (e *Executor) persistAssistant(tr *taskRun, resp *api.Response) {
	input, err := conversation.EncodeCalls(resp.ToolCalls)
	if err != nil {
		e.log.ErrorCtx("could not encode tool calls", map[string]any{"task_id": tr.task.ID, "error": err})
	}
	msg := &models.Message{
		RunID:     tr.run.ID,
		TaskID:    tr.task.ID,
		Role:      models.RoleAssistant,
		Content:   resp.Text,
		ToolInput: input,
	}
	if len(resp.ToolCalls) > 0 {
		names := make([]string, len(resp.ToolCalls))
		for i, c := range resp.ToolCalls {
			names[i] = c.Name
		}
		msg.ToolName = strings.Join(names, ",")
	}
	e.persist(msg)
	if resp.Text != "" {
		e.observer.ChatMessage(*msg)
	}
}

func (e *Executor) persistResult(tr *taskRun, call conversation.ToolCall, r conversation.ToolResult) {
	e.persist(&models.Message{
		RunID:      tr.run.ID,
		TaskID:     tr.task.ID,
		Role:       models.RoleToolResult,
		ToolName:   call.Name,
		ToolCallID: string(call.ID),
		ToolInput:  call.Input,
		ToolResult: r.Content,
		IsError:    r.IsError,
	})
}

// persist writes a message. Failures are logged and never abort the loop.
func (e *Executor) persist(m *models.Message) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = e.now()
	}
	if err := e.store.InsertMessage(m); err != nil {
		e.log.ErrorCtx("could not persist message", map[string]any{"task_id": m.TaskID, "role": string(m.Role), "error": err})
	}
}

// saveTask writes the run-owned fields of t and refreshes the rest of t
// from the store, so fields edited elsewhere during the run survive.
func (e *Executor) saveTask(t *models.Task) {
	t.UpdatedAt = e.now()
	err := e.store.UpdateTaskProgress(t.ID, state.TaskProgress{
		Status:       t.Status,
		Progress:     t.Progress,
		ProgressText: t.ProgressText,
		Summary:      t.Summary,
		CompletedAt:  t.CompletedAt,
		UpdatedAt:    t.UpdatedAt,
	})
	if err != nil {
		e.log.ErrorCtx("could not persist task", map[string]any{"task_id": t.ID, "error": err})
	} else if fresh, err := e.store.GetTask(t.ID); err == nil {
		*t = *fresh
	}
	e.observer.TaskUpdated(*t)
}

func (e *Executor) notify(n *models.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = e.now()
	if err := e.store.CreateNotification(n); err != nil {
		e.log.ErrorCtx("could not persist notification", map[string]any{"task_id": n.TaskID, "type": string(n.Type), "error": err})
	}
	e.observer.NotificationCreated(*n)
}

func (e *Executor) appendEntry(taskID string, h conversation.History, entry conversation.Entry) conversation.History {
	h = h.Append(entry)
	e.cache.Put(taskID, h)
	return h
}

func (e *Executor) appendResults(taskID string, h conversation.History, batch conversation.ToolResultBatch) conversation.History {
	h = h.AppendResults(batch)
	e.cache.Put(taskID, h)
	return h
}

// sortedKeys returns the map keys in order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
