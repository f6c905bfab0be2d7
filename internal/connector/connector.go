// Package connector dispatches model tool calls to external systems.
//
// A connector is a named tool provider with a request/response contract and
// a connection check. The Registry owns the set of connectors for a process
// and never lets a connector failure escape as anything other than a Result.
package connector

import (
	"context"
	"encoding/json"

	"github.com/ShayCichocki/gala/internal/tools"
)

// Connector is an external tool provider.
type Connector interface {
	// ID is the unique connector name, e.g. "vendors".
	ID() string
	// Tools lists the tools this connector serves. It may be empty until
	// Initialize succeeds.
	Tools() []tools.Spec
	// Enabled reports whether the registry should route calls here.
	Enabled() bool
	// Initialize prepares the connector with its credentials.
	Initialize(ctx context.Context, secrets map[string]string) error
	// TestConnection checks that the backing service is reachable.
	TestConnection(ctx context.Context) error
	// ExecuteTool runs one tool. It may return an error or panic; the
	// registry wraps both.
	ExecuteTool(ctx context.Context, name string, input json.RawMessage) (any, error)
}

// Closer is implemented by connectors holding a live session.
type Closer interface {
	Close() error
}

// Result is the outcome of a dispatched tool call as handed back to the
// model.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`

	// HandledByCaller marks a built-in tool the executor must run itself.
	HandledByCaller bool `json:"-"`
}

// JSON renders the result as the tool result content.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		// Data was not serializable; report that instead.
		fallback, _ := json.Marshal(Result{Success: false, Error: "tool returned unserializable data: " + err.Error()})
		return string(fallback)
	}
	return string(b)
}

func success(data any) Result {
	return Result{Success: true, Data: data}
}

func failure(msg string) Result {
	return Result{Success: false, Error: msg}
}
