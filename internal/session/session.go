// Package session holds the ground-truth conversation log. A Session is a
// value: the append operations return a new Session and never mutate the
// receiver, so callers can hold references across a turn without observing
// half-applied updates.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message roles accepted by the log.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool invocation statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusError   = "error"
)

// ValidationError reports a message or invocation that violates the log
// invariants. It is always recoverable: callers turn it into a log entry
// or a user-visible explanation, never a crash.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "session: " + e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ToolRequest is a structured tool call as emitted by the remote model,
// after its argument string has been parsed into a JSON object.
type ToolRequest struct {
	Name      string         `json:"name" yaml:"name"`
	Arguments map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// Message is one immutable entry in the conversation log.
type Message struct {
	Role        string       `json:"role" yaml:"role"`
	Content     string       `json:"content" yaml:"content"`
	ToolName    string       `json:"tool_name,omitempty" yaml:"tool_name,omitempty"`
	ToolRequest *ToolRequest `json:"tool_request,omitempty" yaml:"tool_request,omitempty"`
	CreatedAt   time.Time    `json:"created_at" yaml:"created_at"`
}

/// Validate checks the Message invariants: a tool-role message must name the
// tool it reports on, every other role must carry content or a tool request.
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
		if m.Content == "" && m.ToolRequest == nil {
			return validationErrorf("%s message needs content or a tool request", m.Role)
		}
	case RoleTool:
		if m.ToolName == "" {
			return validationErrorf("tool message missing tool name")
		}
	default:
		return validationErrorf("unknown role %q", m.Role)
	}
	return nil
}

// ToolInvocation records one dispatched tool call and its final outcome.
// Error is populated exactly when Status is "error"; Result is populated
// exactly when Status is "success".
type ToolInvocation struct {
	ID          string         `json:"id" yaml:"id"`
	ToolName    string         `json:"tool_name" yaml:"tool_name"`
	Arguments   map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Status      string         `json:"status" yaml:"status"`
	Result      any            `json:"result,omitempty" yaml:"result,omitempty"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
	RequestedAt time.Time      `json:"requested_at" yaml:"requested_at"`
}

// Validate checks the status/result/error consistency rules.
func (inv ToolInvocation) Validate() error {
	if inv.ToolName == "" {
		return validationErrorf("invocation missing tool name")
	}
	switch inv.Status {
	case StatusPending:
		if inv.Result != nil || inv.Error != "" {
			return validationErrorf("pending invocation %s carries a result or error", inv.ID)
		}
	case StatusSuccess:
		if inv.Error != "" {
			return validationErrorf("success invocation %s carries error %q", inv.ID, inv.Error)
		}
	case StatusError:
		if inv.Error == "" {
			return validationErrorf("error invocation %s missing error text", inv.ID)
		}
		if inv.Result != nil {
			return validationErrorf("error invocation %s carries a result", inv.ID)
		}
	default:
		return validationErrorf("unknown invocation status %q", inv.Status)
	}
	return nil
}

// Session is the aggregate root for one conversation.
type Session struct {
	ID          string           `json:"id" yaml:"id"`
	Messages    []Message        `json:"messages" yaml:"messages"`
	Invocations []ToolInvocation `json:"tool_invocations,omitempty" yaml:"tool_invocations,omitempty"`
	CreatedAt   time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" yaml:"updated_at"`
}

// New creates an empty session with a fresh UUID.
func New() Session {
	now := time.Now().UTC()
	return Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append returns a new Session with msg added. The receiver is unchanged.
// A zero CreatedAt is stamped with the current time; a timestamp earlier
// than the newest message is rejected so ordering stays non-decreasing.
func (s Session) Append(msg Message) (Session, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if err := msg.Validate(); err != nil {
		return Session{}, err
	}
	if n := len(s.Messages); n > 0 && msg.CreatedAt.Before(s.Messages[n-1].CreatedAt) {
		return Session{}, validationErrorf("message timestamp %s precedes newest entry", msg.CreatedAt.Format(time.RFC3339))
	}

	out := s
	out.Messages = append(s.Messages[:len(s.Messages):len(s.Messages)], msg)
	out.UpdatedAt = touch(s.UpdatedAt)
	return out, nil
}

// AppendInvocation returns a new Session with inv recorded. At most one
// pending invocation may exist at a time: tools run synchronously within a
// turn, never concurrently against the same session.
func (s Session) AppendInvocation(inv ToolInvocation) (Session, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.RequestedAt.IsZero() {
		inv.RequestedAt = time.Now().UTC()
	}
	if err := inv.Validate(); err != nil {
		return Session{}, err
	}
	if inv.Status == StatusPending {
		for _, prev := range s.Invocations {
			if prev.Status == StatusPending {
				return Session{}, validationErrorf("invocation %s already pending", prev.ID)
			}
		}
	}

	out := s
	out.Invocations = append(s.Invocations[:len(s.Invocations):len(s.Invocations)], inv)
	out.UpdatedAt = touch(s.UpdatedAt)
	return out, nil
}

// ResolveInvocation returns a new Session in which the pending invocation
// with the given ID has been replaced by its final record.
func (s Session) ResolveInvocation(final ToolInvocation) (Session, error) {
	if err := final.Validate(); err != nil {
		return Session{}, err
	}
	if final.Status == StatusPending {
		return Session{}, validationErrorf("invocation %s resolved to pending", final.ID)
	}
	idx := -1
	for i, prev := range s.Invocations {
		if prev.ID == final.ID && prev.Status == StatusPending {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Session{}, validationErrorf("no pending invocation %s", final.ID)
	}

	out := s
	out.Invocations = make([]ToolInvocation, len(s.Invocations))
	copy(out.Invocations, s.Invocations)
	out.Invocations[idx] = final
	out.UpdatedAt = touch(s.UpdatedAt)
	return out, nil
}

// Clear returns an emptied session that keeps its identity.
func (s Session) Clear() Session {
	return Session{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: touch(s.UpdatedAt),
	}
}

// LastN returns the newest n messages in order. It never mutates the
// session; the returned slice is a fresh copy.
func LastN(s Session, n int) []Message {
	if n <= 0 || len(s.Messages) == 0 {
		return nil
	}
	if n > len(s.Messages) {
		n = len(s.Messages)
	}
	out := make([]Message, n)
	copy(out, s.Messages[len(s.Messages)-n:])
	return out
}

// PendingInvocation reports the in-flight invocation, if any.
func (s Session) PendingInvocation() (ToolInvocation, bool) {
	for _, inv := range s.Invocations {
		if inv.Status == StatusPending {
			return inv, true
		}
	}
	return ToolInvocation{}, false
}

// touch returns the current time, never going backwards relative to prev so
// updated_at stays monotonic even under coarse clocks.
func touch(prev time.Time) time.Time {
	now := time.Now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}
