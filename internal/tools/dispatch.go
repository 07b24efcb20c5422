package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/torvik-dev/parley/internal/session"
)

// Request is one parsed tool call awaiting dispatch.
type Request struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolExecutionError wraps a handler failure for one attempt. It never
// propagates past the dispatcher: the final attempt's error becomes the
// invocation's error text.
type ToolExecutionError struct {
	Tool    string
	Attempt int
	Err     error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s attempt %d: %v", e.Tool, e.Attempt, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// ConfirmFunc decides whether a confirmation-gated tool may run. A nil
// ConfirmFunc auto-approves with a log line.
type ConfirmFunc func(spec Spec, args map[string]any) bool

// Dispatcher validates and executes tool requests against a registry.
// Every outcome, including validation failures and unknown tools, is
// reported as a ToolInvocation; nothing escapes as an error or panic.
type Dispatcher struct {
	reg     *Registry
	log     *slog.Logger
	confirm ConfirmFunc
}

// NewDispatcher returns a dispatcher over reg.
func NewDispatcher(reg *Registry, log *slog.Logger, confirm ConfirmFunc) *Dispatcher {
	return &Dispatcher{reg: reg, log: log, confirm: confirm}
}

// Execute runs one tool request to its final outcome. Handlers are retried
// up to the spec's MaxRetries; individual attempt failures are logged and
// only the last outcome is recorded. Retries re-invoke the handler blindly,
// so a non-idempotent tool may repeat its side effect.
func (d *Dispatcher) Execute(ctx context.Context, req Request) session.ToolInvocation {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	base := session.ToolInvocation{
		ID:          req.ID,
		ToolName:    req.Name,
		Arguments:   req.Arguments,
		RequestedAt: time.Now().UTC(),
	}

	spec, handler, ok := d.reg.Lookup(req.Name)
	if !ok {
		d.log.Warn("unknown tool requested", "tool", req.Name)
		return errorInvocation(base, fmt.Sprintf("unknown tool %q: not registered", req.Name))
	}

	if err := spec.Validate(req.Arguments); err != nil {
		d.log.Warn("tool arguments rejected", "tool", req.Name, "error", err)
		return errorInvocation(base, err.Error())
	}

	if spec.RequiresConfirmation {
		if d.confirm == nil {
			d.log.Info("tool requires confirmation, auto-approving", "tool", spec.Name)
		} else if !d.confirm(spec, req.Arguments) {
			return errorInvocation(base, fmt.Sprintf("tool %q: confirmation denied", spec.Name))
		}
	}

	var lastErr error
	for attempt := 1; attempt <= spec.MaxRetries; attempt++ {
		result, err := d.runOnce(ctx, spec, handler, req.Arguments)
		if err == nil {
			if attempt > 1 {
				d.log.Info("tool succeeded after retry", "tool", spec.Name, "attempt", attempt)
			}
			out := base
			out.Status = session.StatusSuccess
			out.Result = result
			return out
		}
		lastErr = err
		d.log.Warn("tool attempt failed",
			"tool", spec.Name,
			"attempt", attempt,
			"max_retries", spec.MaxRetries,
			"error", err)
	}

	return errorInvocation(base, (&ToolExecutionError{Tool: spec.Name, Attempt: spec.MaxRetries, Err: lastErr}).Error())
}

// runOnce executes a single attempt under the spec's timeout, converting a
// handler panic into an error.
func (d *Dispatcher) runOnce(ctx context.Context, spec Spec, handler Handler, args map[string]any) (result any, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(attemptCtx, args)
}

func errorInvocation(base session.ToolInvocation, msg string) session.ToolInvocation {
	out := base
	out.Status = session.StatusError
	out.Error = msg
	out.Result = nil
	return out
}
