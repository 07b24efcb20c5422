package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/torvik-dev/parley/internal/llm"
	"github.com/torvik-dev/parley/internal/session"
	"github.com/torvik-dev/parley/internal/tools"
	"github.com/torvik-dev/parley/internal/window"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(t *testing.T, provider llm.Provider, cfg Config) (*Orchestrator, *tools.Registry) {
	t.Helper()
	log := testLogger()
	reg := tools.NewRegistry(log)
	if err := tools.RegisterBuiltins(reg); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	dispatcher := tools.NewDispatcher(reg, log, nil)
	client := llm.NewClient(provider, llm.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}, log)
	assembler := window.New("You are a test assistant.", 4096, 100)
	if cfg.Model == "" {
		cfg.Model = "test-model"
	}
	return NewOrchestrator(assembler, client, dispatcher, reg, cfg, log), reg
}

func newSession(t *testing.T) session.Session {
	t.Helper()
	now := time.Now()
	return session.Session{ID: "test-session", CreatedAt: now, UpdatedAt: now}
}

func TestTurnPlainAnswer(t *testing.T) {
	provider := llm.NewDummyProvider([]*llm.Response{
		{Content: "four", FinishReason: "stop", Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}},
	}, nil)
	orch, _ := newTestOrchestrator(t, provider, Config{})

	result, err := orch.Turn(context.Background(), newSession(t), "what is 2+2?")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if result.Answer != "four" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if len(result.Session.Messages) != 2 {
		t.Fatalf("session has %d messages, want user + assistant", len(result.Session.Messages))
	}
	if result.Session.Messages[0].Role != session.RoleUser || result.Session.Messages[1].Role != session.RoleAssistant {
		t.Errorf("roles = %s, %s", result.Session.Messages[0].Role, result.Session.Messages[1].Role)
	}
	if result.Usage.TotalTokens != 12 {
		t.Errorf("TotalTokens = %d, want 12", result.Usage.TotalTokens)
	}
}

func TestTurnWithToolCall(t *testing.T) {
	provider := llm.NewDummyProvider([]*llm.Response{
		{
			ToolRequest:  &session.ToolRequest{Name: "calculate", Arguments: map[string]any{"expression": "6*7"}},
			FinishReason: "tool_calls",
			Usage:        llm.Usage{TotalTokens: 20},
		},
		{Content: "The answer is 42.", FinishReason: "stop", Usage: llm.Usage{TotalTokens: 8}},
	}, nil)
	orch, _ := newTestOrchestrator(t, provider, Config{})

	result, err := orch.Turn(context.Background(), newSession(t), "what is 6*7?")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if result.Answer != "The answer is 42." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if len(result.Invocations) != 1 {
		t.Fatalf("%d invocations, want 1", len(result.Invocations))
	}
	inv := result.Invocations[0]
	if inv.Status != session.StatusSuccess {
		t.Errorf("invocation status = %s: %s", inv.Status, inv.Error)
	}
	if len(result.Session.Invocations) != 1 {
		t.Errorf("session records %d invocations", len(result.Session.Invocations))
	}
	// user, assistant tool request, tool result, final assistant.
	if len(result.Session.Messages) != 4 {
		t.Fatalf("session has %d messages, want 4", len(result.Session.Messages))
	}
	toolMsg := result.Session.Messages[2]
	if toolMsg.Role != session.RoleTool || toolMsg.ToolName != "calculate" {
		t.Errorf("tool message = %+v", toolMsg)
	}
	if !strings.Contains(toolMsg.Content, "42") {
		t.Errorf("tool summary %q should carry the result", toolMsg.Content)
	}
	if result.Usage.TotalTokens != 28 {
		t.Errorf("TotalTokens = %d, want 28", result.Usage.TotalTokens)
	}
}

func TestTurnUnknownToolIsRecoverable(t *testing.T) {
	provider := llm.NewDummyProvider([]*llm.Response{
		{ToolRequest: &session.ToolRequest{Name: "launch_rocket", Arguments: map[string]any{}}, FinishReason: "tool_calls"},
		{Content: "I could not do that.", FinishReason: "stop"},
	}, nil)
	orch, _ := newTestOrchestrator(t, provider, Config{})

	result, err := orch.Turn(context.Background(), newSession(t), "launch")
	if err != nil {
		t.Fatalf("unknown tool must not fail the turn: %v", err)
	}
	if len(result.Invocations) != 1 {
		t.Fatalf("%d invocations, want 1", len(result.Invocations))
	}
	inv := result.Invocations[0]
	if inv.Status != session.StatusError {
		t.Errorf("status = %s, want error", inv.Status)
	}
	if !strings.Contains(inv.Error, "launch_rocket") {
		t.Errorf("error %q should name the unregistered tool", inv.Error)
	}
	if result.Answer != "I could not do that." {
		t.Errorf("Answer = %q", result.Answer)
	}
}

func TestTurnRemoteFailureKeepsUserMessageOnly(t *testing.T) {
	down := errors.New("provider down")
	provider := llm.NewDummyProvider(nil, []error{down, down})
	orch, _ := newTestOrchestrator(t, provider, Config{})

	result, err := orch.Turn(context.Background(), newSession(t), "hello?")
	if err == nil {
		t.Fatal("expected turn failure")
	}
	var re *llm.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if len(result.Session.Messages) != 1 {
		t.Fatalf("session has %d messages, want only the user message", len(result.Session.Messages))
	}
	if result.Session.Messages[0].Role != session.RoleUser {
		t.Errorf("surviving message role = %s", result.Session.Messages[0].Role)
	}
}

func TestTurnToolCallLimit(t *testing.T) {
	req := &session.ToolRequest{Name: "get_current_time", Arguments: map[string]any{}}
	responses := []*llm.Response{
		{ToolRequest: req, FinishReason: "tool_calls"},
		{ToolRequest: req, FinishReason: "tool_calls"},
		{ToolRequest: req, FinishReason: "tool_calls"},
	}
	provider := llm.NewDummyProvider(responses, nil)
	orch, _ := newTestOrchestrator(t, provider, Config{MaxToolCallsPerTurn: 2})

	result, err := orch.Turn(context.Background(), newSession(t), "loop forever")
	if err != nil {
		t.Fatalf("limit must degrade, not fail: %v", err)
	}
	if !strings.Contains(result.Answer, "2 tool calls") {
		t.Errorf("degraded answer %q should explain the limit", result.Answer)
	}
	if len(result.Invocations) != 2 {
		t.Errorf("%d invocations, want 2", len(result.Invocations))
	}
	last := result.Session.Messages[len(result.Session.Messages)-1]
	if last.Role != session.RoleAssistant {
		t.Errorf("final message role = %s", last.Role)
	}
}

func TestTurnMalformedToolArgumentsIsRecoverable(t *testing.T) {
	bad := errors.Join(llm.ErrInvalidToolArguments, errors.New("tool calculate: bad json"))
	provider := llm.NewDummyProvider(nil, []error{bad})
	orch, _ := newTestOrchestrator(t, provider, Config{})

	result, err := orch.Turn(context.Background(), newSession(t), "math please")
	if err != nil {
		t.Fatalf("malformed tool arguments must not fail the turn: %v", err)
	}
	if !strings.Contains(result.Answer, "could not parse") {
		t.Errorf("Answer = %q", result.Answer)
	}
	if len(result.Session.Messages) != 2 {
		t.Errorf("session has %d messages, want user + explanation", len(result.Session.Messages))
	}
}

func TestTurnRecoversFromRetriesWithinClient(t *testing.T) {
	provider := llm.NewDummyProvider(
		[]*llm.Response{nil, {Content: "finally", FinishReason: "stop"}},
		[]error{errors.New("flaky"), nil},
	)
	orch, _ := newTestOrchestrator(t, provider, Config{})

	result, err := orch.Turn(context.Background(), newSession(t), "hi")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if result.Answer != "finally" {
		t.Errorf("Answer = %q", result.Answer)
	}
}
