package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/torvik-dev/parley/internal/agent"
	"github.com/torvik-dev/parley/internal/config"
	"github.com/torvik-dev/parley/internal/session"
	"github.com/torvik-dev/parley/internal/tools"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Chat with the agent (interactive when no prompt is given)",
		Args:  cobra.ArbitraryArgs,
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := resumeSession(a)
	if err != nil {
		return err
	}

	if a.cfg.Tools.Enabled {
		stop, err := startManifestWatcher(ctx, a)
		if err != nil {
			a.log.Warn("manifest watcher unavailable", "error", err)
		} else if stop != nil {
			defer stop()
		}
	}

	orch, err := a.orchestrator(confirmOnStdin)
	if err != nil {
		return err
	}

	// One-shot mode: a prompt on the command line.
	if len(args) > 0 {
		return runTurn(ctx, a, orch, &sess, strings.Join(args, " "))
	}

	fmt.Printf("session %s — type a message, or \"exit\" to quit\n", sess.ID)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		if err := runTurn(ctx, a, orch, &sess, input); err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
		}
	}
	return scanner.Err()
}

func runTurn(ctx context.Context, a *app, orch *agent.Orchestrator, sess *session.Session, input string) error {
	result, err := orch.Turn(ctx, *sess, input)
	// Persist whatever state the turn left behind, success or not.
	if result.Session.ID != "" {
		*sess = result.Session
		if a.store != nil {
			if saveErr := a.store.SaveSession(*sess); saveErr != nil {
				a.log.Error("save session", "session", sess.ID, "error", saveErr)
			}
		}
	}
	if err != nil {
		return err
	}

	for _, inv := range result.Invocations {
		if inv.Status == session.StatusError {
			fmt.Printf("[tool %s failed: %s]\n", inv.ToolName, inv.Error)
		} else {
			fmt.Printf("[ran tool %s]\n", inv.ToolName)
		}
	}
	fmt.Println(result.Answer)
	a.log.Debug("turn complete",
		"session", sess.ID,
		"tool_calls", len(result.Invocations),
		"total_tokens", result.Usage.TotalTokens)
	return nil
}

func resumeSession(a *app) (session.Session, error) {
	if a.store == nil {
		return session.New(), nil
	}
	if flagSessionID != "" {
		return a.store.LoadSession(flagSessionID)
	}
	recent, err := a.store.LoadMostRecentSession()
	if err != nil {
		return session.Session{}, err
	}
	if recent != nil {
		return *recent, nil
	}
	return session.New(), nil
}

// startManifestWatcher loads manifest tools and hot-registers new ones
// until the returned stop function is called. A missing directory is not
// an error; it just means no manifest tools.
func startManifestWatcher(ctx context.Context, a *app) (func(), error) {
	dir := a.cfg.Tools.ManifestDir
	if dir == "" {
		var err error
		dir, err = config.DefaultManifestDir()
		if err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	watcher, err := tools.NewWatcher(dir, a.reg, a.log)
	if err != nil {
		return nil, err
	}
	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := watcher.Run(watchCtx); err != nil && watchCtx.Err() == nil {
			a.log.Error("manifest watcher stopped", "error", err)
		}
	}()
	return func() {
		cancel()
		watcher.Close()
	}, nil
}

func confirmOnStdin(spec tools.Spec, args map[string]any) bool {
	fmt.Printf("tool %s wants to run with %v — allow? [y/N] ", spec.Name, args)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
