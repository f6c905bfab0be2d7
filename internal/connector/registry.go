package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/ShayCichocki/gala/internal/errors"
	"github.com/ShayCichocki/gala/internal/logging"
	"github.com/ShayCichocki/gala/internal/tools"
)

var (
	// ErrDuplicateTool is returned when two connectors, or a connector and
	// a built-in, advertise the same tool name.
	ErrDuplicateTool = errors.New("duplicate tool name")
	// ErrDuplicateConnector is returned when a connector id is reused.
	ErrDuplicateConnector = errors.New("duplicate connector id")
)

// Registry holds the connectors of one process. It is safe for concurrent
// use; orchestrators for different events share it.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
	order      []string
	log        *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]Connector),
		log:        logging.Component("connector"),
	}
}

// Register adds c. Tool names must not collide with built-ins or with tools
// of an already registered connector.
func (r *Registry) Register(c Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := c.ID()
	if _, exists := r.connectors[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateConnector, id)
	}

	specs := c.Tools()
	if err := tools.Validate(specs); err != nil {
		return fmt.Errorf("connector %s: %w", id, err)
	}
	for _, spec := range specs {
		if tools.IsBuiltin(spec.Name) {
			return fmt.Errorf("%w: connector %s shadows built-in %s", ErrDuplicateTool, id, spec.Name)
		}
		if owner := r.ownerLocked(spec.Name, false); owner != nil {
			return fmt.Errorf("%w: %s is served by both %s and %s", ErrDuplicateTool, spec.Name, owner.ID(), id)
		}
	}

	r.connectors[id] = c
	r.order = append(r.order, id)
	r.log.DebugCtx("connector registered", map[string]any{"connector": id, "tools": len(specs), "enabled": c.Enabled()})
	return nil
}

// Get returns the connector with the given id.
func (r *Registry) Get(id string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[id]
	return c, ok
}

// List returns every connector in registration order.
func (r *Registry) List() []Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connector, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.connectors[id])
	}
	return out
}

// ListEnabled returns the enabled connectors in registration order.
func (r *Registry) ListEnabled() []Connector {
	var out []Connector
	for _, c := range r.List() {
		if c.Enabled() {
			out = append(out, c)
		}
	}
	return out
}

// AllTools returns the built-ins followed by the tools of every enabled
// connector.
func (r *Registry) AllTools() []tools.Spec {
	specs := tools.Builtins()
	for _, c := range r.ListEnabled() {
		specs = append(specs, c.Tools()...)
	}
	return specs
}

// Execute dispatches a tool call. Built-ins come back with HandledByCaller
// set and are never run here. Every other outcome, including a panic inside
// the connector, is a Result.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) Result {
	if tools.IsBuiltin(name) {
		return Result{HandledByCaller: true}
	}

	r.mu.RLock()
	owner := r.ownerLocked(name, true)
	r.mu.RUnlock()
	if owner == nil {
		return failure(fmt.Sprintf("unknown tool: %s", name))
	}

	data, err := r.invoke(ctx, owner, name, input)
	if err != nil {
		terr := &apperrors.ToolError{Tool: name, Err: err}
		r.log.WarnCtx("connector tool failed", map[string]any{"connector": owner.ID(), "tool": name, "error": err})
		return failure(apperrors.FormatForModel(terr))
	}
	return success(data)
}

// Close closes every connector that holds a session.
func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.List() {
		if cl, ok := c.(Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", c.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// ToolOwners maps every enabled tool name to its connector id.
func (r *Registry) ToolOwners() map[string]string {
	owners := make(map[string]string)
	for _, c := range r.ListEnabled() {
		for _, spec := range c.Tools() {
			owners[spec.Name] = c.ID()
		}
	}
	return owners
}

// IDs returns the registered connector ids sorted by name.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}

func (r *Registry) invoke(ctx context.Context, c Connector, name string, input json.RawMessage) (data any, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.ErrorCtx("connector panicked", map[string]any{"connector": c.ID(), "tool": name, "panic": fmt.Sprint(p)})
			data = nil
			err = fmt.Errorf("connector panicked: %v", p)
		}
	}()
	return c.ExecuteTool(ctx, name, input)
}

func (r *Registry) ownerLocked(name string, enabledOnly bool) Connector {
	for _, id := range r.order {
		c := r.connectors[id]
		if enabledOnly && !c.Enabled() {
			continue
		}
		for _, spec := range c.Tools() {
			if spec.Name == name {
				return c
			}
		}
	}
	return nil
}
