// Package llm issues remote completion requests. Providers adapt one wire
// format each; Client wraps any provider with the retry/backoff policy.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/torvik-dev/parley/internal/session"
	"github.com/torvik-dev/parley/internal/tools"
)

// Request is one assembled prompt ready for the remote model.
type Request struct {
	Model       string
	System      string
	Messages    []session.Message
	Tools       []tools.Descriptor
	MaxTokens   int
	Temperature float64
}

// Usage reports the token counts the provider billed for one response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the provider's answer. Exactly one of Content/ToolRequest is
// the primary result, but both may be present when the model emits
// commentary alongside a tool request.
type Response struct {
	Content      string
	ToolRequest  *session.ToolRequest
	FinishReason string
	Usage        Usage
}

// Provider issues a single completion request, no retries.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// ErrInvalidToolArguments marks a response whose tool-call arguments were
// not a valid JSON object. It is a validation failure, never retried and
// never fatal: the orchestrator reports it back into the conversation.
var ErrInvalidToolArguments = errors.New("malformed tool call arguments")

// RemoteError is the terminal failure of a completion call after the retry
// policy is exhausted. It carries the last underlying error.
type RemoteError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote completion via %s failed after %d attempts: %v", e.Provider, e.Attempts, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }
