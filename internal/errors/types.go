// Package errors classifies failures the orchestrator has to tell apart:
// configuration problems, model call failures and tool failures.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// ErrGatewayNotConfigured is returned by Start when no model gateway is set.
var ErrGatewayNotConfigured = &ConfigError{Field: "model gateway", Message: "model gateway is not configured"}

// ConfigError is fatal to starting a run.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("configuration error: %s", e.Field)
}

// ModelError wraps a failed model call.
type ModelError struct {
	Err        error
	StatusCode int
	Transient  bool
}

func (e *ModelError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("model call failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model call failed: %v", e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// ToolError wraps a failed tool execution.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewModelError classifies err and wraps it as a ModelError.
func NewModelError(err error) *ModelError {
	if err == nil {
		return nil
	}
	var me *ModelError
	if errors.As(err, &me) {
		return me
	}
	code := statusCode(err)
	return &ModelError{
		Err:        err,
		StatusCode: code,
		Transient:  IsTransient(err),
	}
}

// IsTransient reports whether err is likely to succeed on a later attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var me *ModelError
	if errors.As(err, &me) {
		return me.Transient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if code := statusCode(err); code > 0 {
		return isTransientStatus(code)
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection refused", "connection reset", "timeout", "overloaded"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Label returns a short metrics label for err.
func Label(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsTransient(err):
		return "transient"
	default:
		return "permanent"
	}
}

// FormatForModel renders err as a message the model can act on.
func FormatForModel(err error) string {
	if err == nil {
		return ""
	}
	var te *ToolError
	if errors.As(err, &te) {
		return fmt.Sprintf("Tool %s failed: %v", te.Tool, te.Err)
	}
	if IsTransient(err) {
		return fmt.Sprintf("Temporary failure, you may try again later: %v", err)
	}
	return err.Error()
}

func statusCode(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	// 529 is the provider's overloaded status.
	return code == 529
}
