package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/torvik-dev/parley/internal/agent"
	"github.com/torvik-dev/parley/internal/config"
	"github.com/torvik-dev/parley/internal/llm"
	"github.com/torvik-dev/parley/internal/logger"
	"github.com/torvik-dev/parley/internal/store"
	"github.com/torvik-dev/parley/internal/tools"
	"github.com/torvik-dev/parley/internal/window"
)

var (
	flagConfig     string
	flagModel      string
	flagTemp       float64
	flagMaxTokens  int
	flagSessionID  string
	flagMemoryDB   string
	flagNoMemory   bool
	flagNoTools    bool
	flagStrategy   string
	flagMaxRetries int
	flagLogLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "parley [prompt]",
		Short: "parley — a tool-using conversational agent",
		Long:  "Talks to a remote model, dispatches the tools it asks for, and keeps the conversation on disk.",
		Args:  cobra.ArbitraryArgs,
		RunE:  runChat,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "Config file (default ~/.parley/config.yaml)")
	flags.StringVar(&flagModel, "model", "", "Override the configured model")
	flags.Float64Var(&flagTemp, "temperature", -1, "Override sampling temperature")
	flags.IntVar(&flagMaxTokens, "max-tokens", 0, "Override response token cap")
	flags.StringVar(&flagSessionID, "session-id", "", "Resume the named session instead of the most recent")
	flags.StringVar(&flagMemoryDB, "memory-db", "", "SQLite database path")
	flags.BoolVar(&flagNoMemory, "no-memory", false, "Do not persist the session")
	flags.BoolVar(&flagNoTools, "no-tools", false, "Disable tool dispatch for this run")
	flags.StringVar(&flagStrategy, "context-strategy", "", "Context strategy: default|recent_only|compressed|minimal|no_system")
	flags.IntVar(&flagMaxRetries, "max-retries", 0, "Remote call attempts before giving up")
	flags.StringVar(&flagLogLevel, "log-level", "", "Log level: debug|info|warn|error")

	root.AddCommand(
		chatCmd(),
		sessionsCmd(),
		toolsCmd(),
		statsCmd(),
		backupCmd(),
		configCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles everything a command needs, built once per invocation.
type app struct {
	cfg   config.Config
	log   *slog.Logger
	store *store.Store
	reg   *tools.Registry
}

func buildApp() (*app, error) {
	path := flagConfig
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	applyFlags(&cfg)

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}

	if cfg.Database.Enabled {
		dbPath := cfg.Database.Path
		if !filepath.IsAbs(dbPath) && dbPath != ":memory:" {
			if dir, err := config.UserDir(); err == nil {
				if mkErr := os.MkdirAll(dir, 0o755); mkErr == nil {
					dbPath = filepath.Join(dir, dbPath)
				}
			}
		}
		a.store, err = store.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
	}

	a.reg = tools.NewRegistry(log)
	if cfg.Tools.Enabled {
		if err := tools.RegisterBuiltins(a.reg); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

func applyFlags(cfg *config.Config) {
	if flagModel != "" {
		cfg.LLM.Model = flagModel
	}
	if flagTemp >= 0 {
		cfg.LLM.Temperature = flagTemp
	}
	if flagMaxTokens > 0 {
		cfg.LLM.MaxTokens = flagMaxTokens
	}
	if flagMemoryDB != "" {
		cfg.Database.Path = flagMemoryDB
	}
	if flagNoMemory {
		cfg.Database.Enabled = false
	}
	if flagNoTools {
		cfg.Tools.Enabled = false
	}
	if flagStrategy != "" {
		cfg.Context.Strategy = flagStrategy
	}
	if flagMaxRetries > 0 {
		cfg.LLM.MaxRetries = flagMaxRetries
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
}

func (a *app) provider() (llm.Provider, error) {
	switch a.cfg.LLM.Provider {
	case "openrouter":
		return llm.NewOpenRouterProvider(a.cfg.LLM.APIKey, a.cfg.LLM.BaseURL), nil
	case "anthropic":
		return llm.NewAnthropicProvider(a.cfg.LLM.APIKey, a.cfg.LLM.BaseURL), nil
	case "dummy":
		return llm.NewDummyProvider([]*llm.Response{{Content: "dummy response", FinishReason: "stop"}}, nil), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", a.cfg.LLM.Provider)
	}
}

func (a *app) orchestrator(confirm tools.ConfirmFunc) (*agent.Orchestrator, error) {
	provider, err := a.provider()
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(provider, llm.RetryPolicy{
		MaxAttempts: a.cfg.LLM.MaxRetries,
		BaseDelay:   time.Duration(a.cfg.LLM.BaseDelay),
		Exponential: a.cfg.LLM.Exponential,
	}, a.log)

	assembler := window.New(
		a.cfg.Context.Preamble,
		a.cfg.Context.TokenBudget,
		a.cfg.Context.MaxMessages,
		window.WithCache(window.NewCache(64)),
	)
	dispatcher := tools.NewDispatcher(a.reg, a.log, confirm)

	return agent.NewOrchestrator(assembler, client, dispatcher, a.reg, agent.Config{
		Model:               a.cfg.LLM.Model,
		Temperature:         a.cfg.LLM.Temperature,
		MaxTokens:           a.cfg.LLM.MaxTokens,
		Strategy:            a.cfg.Context.Strategy,
		MaxToolCallsPerTurn: a.cfg.Tools.MaxToolCallsPerTurn,
	}, a.log), nil
}
