// Package dispatcher is the thin router (C11) that sits between an agent's
// tool call and internal/tools' registry: it consults the session's phase
// gate, times the call, and converts any panic raised deep inside a tool
// implementation into a structured error payload rather than letting it
// take the whole session down. Grounded on the original's tools/router.py,
// whose dispatch() does exactly this three-step job and nothing else.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeintel/internal/logging"
	"codeintel/internal/session"
	"codeintel/internal/tools"
)

// Payload is the JSON-shaped result every dispatched call returns,
// win or lose — callers never need to type-switch on error vs success.
type Payload struct {
	ToolName   string `json:"tool_name"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Dispatcher routes tool calls for one active session against a shared
// tool registry.
type Dispatcher struct {
	registry *tools.Registry
}

// New creates a Dispatcher over registry.
func New(registry *tools.Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch is the single entry point an agent's tool call goes through.
// It never returns a Go error for a recoverable failure — everything
// becomes part of the Payload so the caller can always render a response.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, toolName string, args map[string]any) Payload {
	start := time.Now()

	if sess.AwaitingIntervention && toolName != "record_intervention_used" {
		return Payload{
			ToolName:   toolName,
			Error:      "intervention_required",
			Message:    "three consecutive verification failures occurred; call record_intervention_used before continuing",
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	if err := sess.CheckTool(toolName); err != nil {
		return Payload{
			ToolName:   toolName,
			Error:      "phase_blocked",
			Message:    err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	tool := d.registry.Get(toolName)
	if tool == nil {
		return Payload{
			ToolName:   toolName,
			Error:      "tool_not_found",
			Message:    fmt.Sprintf("no tool registered under %q", toolName),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	return d.safeExecute(ctx, tool, args, start)
}

// safeExecute runs a tool, converting a panicking implementation into an
// error payload instead of crashing the session — the Go analogue of
// router.py's try/except around every dispatched call.
func (d *Dispatcher) safeExecute(ctx context.Context, tool *tools.Tool, args map[string]any, start time.Time) (payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryDispatcher).Error("tool %s panicked: %v", tool.Name, r)
			payload = Payload{
				ToolName:   tool.Name,
				Error:      "internal_error",
				Message:    fmt.Sprintf("%v", r),
				DurationMs: time.Since(start).Milliseconds(),
			}
		}
	}()

	result, err := d.registry.ExecuteTool(ctx, tool, args)
	if err != nil {
		return Payload{
			ToolName:   tool.Name,
			Error:      classifyError(err),
			Message:    err.Error(),
			DurationMs: result.DurationMs,
		}
	}
	return Payload{
		ToolName:   tool.Name,
		Result:     result.Result,
		DurationMs: result.DurationMs,
	}
}

// classifyError gives the payload's Error field a stable short code
// instead of leaking the raw Go error type name, while still letting
// sentinel errors (ErrMissingRequiredArg, ErrToolNotFound) surface as
// recognizable strings to the caller.
func classifyError(err error) string {
	switch {
	case errors.Is(err, tools.ErrMissingRequiredArg), errors.Is(err, tools.ErrToolNotFound):
		return err.Error()
	default:
		return "execution_failed"
	}
}
