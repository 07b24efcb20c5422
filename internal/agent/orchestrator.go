package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/torvik-dev/parley/internal/llm"
	"github.com/torvik-dev/parley/internal/session"
	"github.com/torvik-dev/parley/internal/tools"
	"github.com/torvik-dev/parley/internal/window"
)

// DefaultMaxToolCalls bounds how many tool round-trips one turn may make.
const DefaultMaxToolCalls = 5

// Completer is the remote side of a turn. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Config holds the per-orchestrator knobs.
type Config struct {
	Model               string
	Temperature         float64
	MaxTokens           int
	Strategy            string
	MaxToolCallsPerTurn int
}

// TurnResult is what one completed turn hands back to the caller: the
// updated session, the answer text, and what it cost.
type TurnResult struct {
	Session     session.Session
	Answer      string
	Invocations []session.ToolInvocation
	Usage       llm.Usage
}

// Orchestrator drives one session through user turns. It owns no mutable
// state between turns; the session value travels in and out of Turn, so
// independent orchestrators can serve independent sessions concurrently.
type Orchestrator struct {
	assembler  *window.Assembler
	client     Completer
	dispatcher *tools.Dispatcher
	registry   *tools.Registry
	cfg        Config
	log        *slog.Logger
	now        func() time.Time
}

func NewOrchestrator(assembler *window.Assembler, client Completer, dispatcher *tools.Dispatcher, registry *tools.Registry, cfg Config, log *slog.Logger) *Orchestrator {
	if cfg.MaxToolCallsPerTurn < 1 {
		cfg.MaxToolCallsPerTurn = DefaultMaxToolCalls
	}
	if cfg.Strategy == "" {
		cfg.Strategy = window.StrategyDefault
	}
	return &Orchestrator{
		assembler:  assembler,
		client:     client,
		dispatcher: dispatcher,
		registry:   registry,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// Turn runs one full user turn: append the input, then loop
// assemble → complete → dispatch until the model produces a final answer
// or the tool-call bound is hit. A remote failure after retries ends the
// turn with an error; the returned session then carries only the user
// message, so the caller can persist it and retry the turn later.
func (o *Orchestrator) Turn(ctx context.Context, s session.Session, userInput string) (TurnResult, error) {
	working, err := s.Append(session.Message{
		Role:      session.RoleUser,
		Content:   userInput,
		CreatedAt: o.now(),
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("append user message: %w", err)
	}
	afterUser := working

	var (
		result TurnResult
		descrs = o.registry.DescribeAll()
		calls  int
	)

	for {
		asm := o.assembler.Assemble(working, o.cfg.Strategy)
		o.log.Debug("context assembled",
			"session", working.ID,
			"strategy", o.cfg.Strategy,
			"messages", asm.Meta.MessageCount,
			"estimated_tokens", asm.Meta.EstimatedTokens)

		resp, err := o.client.Complete(ctx, llm.Request{
			Model:       o.cfg.Model,
			System:      asm.SystemPreamble,
			Messages:    asm.Messages,
			Tools:       descrs,
			MaxTokens:   o.cfg.MaxTokens,
			Temperature: o.cfg.Temperature,
		})
		if err != nil {
			if errors.Is(err, llm.ErrInvalidToolArguments) {
				// Recoverable: the model emitted an unparseable tool call.
				// Explain instead of aborting the turn.
				o.log.Warn("malformed tool request", "session", working.ID, "error", err)
				return o.answer(working, result,
					"The model produced a tool request I could not parse, so no tool was run. Please try rephrasing.")
			}
			o.log.Error("turn failed", "session", working.ID, "error", err)
			result.Session = afterUser
			return result, err
		}
		result.Usage = addUsage(result.Usage, resp.Usage)

		if resp.ToolRequest == nil {
			content := resp.Content
			if content == "" {
				content = "(the model returned an empty response)"
			}
			return o.answer(working, result, content)
		}

		calls++
		if calls > o.cfg.MaxToolCallsPerTurn {
			o.log.Warn("tool call limit reached", "session", working.ID, "limit", o.cfg.MaxToolCallsPerTurn)
			return o.answer(working, result, fmt.Sprintf(
				"I stopped after %d tool calls without reaching a final answer. Here is what I have so far; ask again to continue.",
				o.cfg.MaxToolCallsPerTurn))
		}

		working, err = working.Append(session.Message{
			Role:        session.RoleAssistant,
			Content:     resp.Content,
			ToolRequest: resp.ToolRequest,
			CreatedAt:   o.now(),
		})
		if err != nil {
			return TurnResult{}, fmt.Errorf("append tool request: %w", err)
		}

		inv := o.dispatcher.Execute(ctx, tools.Request{
			Name:      resp.ToolRequest.Name,
			Arguments: resp.ToolRequest.Arguments,
		})
		result.Invocations = append(result.Invocations, inv)

		working, err = working.AppendInvocation(inv)
		if err != nil {
			return TurnResult{}, fmt.Errorf("record invocation: %w", err)
		}
		working, err = working.Append(session.Message{
			Role:      session.RoleTool,
			ToolName:  inv.ToolName,
			Content:   summarizeInvocation(inv),
			CreatedAt: o.now(),
		})
		if err != nil {
			return TurnResult{}, fmt.Errorf("append tool result: %w", err)
		}
	}
}

// answer appends the final assistant message and closes the turn.
func (o *Orchestrator) answer(working session.Session, result TurnResult, content string) (TurnResult, error) {
	final, err := working.Append(session.Message{
		Role:      session.RoleAssistant,
		Content:   content,
		CreatedAt: o.now(),
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("append answer: %w", err)
	}
	result.Session = final
	result.Answer = content
	return result, nil
}

// summarizeInvocation renders an invocation outcome as the tool-role
// message content the model sees on the next loop iteration.
func summarizeInvocation(inv session.ToolInvocation) string {
	if inv.Status == session.StatusError {
		return fmt.Sprintf("tool %s failed: %s", inv.ToolName, inv.Error)
	}
	encoded, err := json.Marshal(inv.Result)
	if err != nil {
		return fmt.Sprintf("tool %s succeeded (unencodable result: %v)", inv.ToolName, err)
	}
	return fmt.Sprintf("tool %s result: %s", inv.ToolName, encoded)
}

func addUsage(a, b llm.Usage) llm.Usage {
	return llm.Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}
