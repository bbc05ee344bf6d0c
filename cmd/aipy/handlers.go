package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aipy-go/aipy/internal/blocks"
	"github.com/aipy-go/aipy/internal/bus"
	"github.com/aipy-go/aipy/internal/config"
	"github.com/aipy-go/aipy/internal/dispatch"
	"github.com/aipy-go/aipy/internal/llm"
	"github.com/aipy-go/aipy/internal/observability"
	"github.com/aipy-go/aipy/internal/prompt"
	execruntime "github.com/aipy-go/aipy/internal/runtime"
	"github.com/aipy-go/aipy/internal/task"
	"github.com/aipy-go/aipy/internal/tools/files"
	"github.com/aipy-go/aipy/internal/tools/policy"
)

// runTask loads configuration, wires every collaborator, and runs one
// instruction through the task loop to completion.
func runTask(ctx context.Context, configPath, instruction string, debug bool, roleOverride, languageOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := cfg.Logging.Level
	if debug {
		logLevel = "debug"
	}
	logger := newSlogLogger(logLevel, cfg.Logging.Format)

	tracingEndpoint := ""
	if cfg.Observability.Tracing.Enabled {
		tracingEndpoint = cfg.Observability.Tracing.Endpoint
	}
	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Observability.Tracing.ServiceName,
		ServiceVersion: cfg.Observability.Tracing.ServiceVersion,
		Environment:    cfg.Observability.Tracing.Environment,
		Endpoint:       tracingEndpoint,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		EnableInsecure: cfg.Observability.Tracing.Insecure,
		Attributes:     cfg.Observability.Tracing.Attributes,
	})
	defer shutdown(context.Background())

	client, err := buildLLMClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to build llm client: %w", err)
	}

	language := cfg.Task.Language
	if languageOverride != "" {
		language = languageOverride
	} else if cfg.Task.Backend == "embedded" {
		// The embedded backend runs blocks against the Lua VM directly; it
		// has no Python/etc. interpreter of its own, so absent an explicit
		// --language override the block language must be Lua too.
		language = "lua"
	}

	eventBus := bus.New(logger)
	eventBus.Register("response_stream", func(args ...any) any {
		if len(args) == 0 {
			return nil
		}
		if payload, ok := args[0].(map[string]any); ok {
			if content, ok := payload["content"].(string); ok {
				fmt.Print(content)
			}
		}
		return nil
	})
	eventBus.Register("summary", func(args ...any) any {
		if len(args) > 0 {
			fmt.Fprintf(os.Stderr, "\n%v\n", args[0])
		}
		return nil
	})

	registry := blocks.NewRegistry(language)
	registry.WorkspaceRoot = cfg.Workspace.Root

	confirmer := execruntime.NewStdConfirmer(bufio.NewReader(os.Stdin), func(s string) {
		fmt.Fprint(os.Stderr, s)
	})
	env := execruntime.NewEnvTable()
	display := &busDisplay{bus: eventBus}
	facade := execruntime.NewFacade(execruntime.Config{
		AutoInstall: !cfg.Task.ToolsEnabled,
	}, confirmer, env, registry, display, logger)

	executor := buildExecutor(cfg.Task.Backend, language)
	runtime := execruntime.NewRuntime(registry, executor, facade, execruntime.NewPersistentState(), env, language)

	var dispatcher *dispatch.Dispatcher
	if cfg.Task.ToolsEnabled {
		dispatcher, err = dispatch.NewDispatcher(cfg.Tools.CatalogPath, cfg.Tools.CallTimeout, logger)
		if err != nil {
			return fmt.Errorf("failed to build tool dispatcher: %w", err)
		}
		defer dispatcher.Close()
		if cfg.Tools.Policy.Profile != "" || len(cfg.Tools.Policy.Allow) > 0 || len(cfg.Tools.Policy.Deny) > 0 {
			dispatcher.Policy = policy.NewPolicy(policy.Profile(cfg.Tools.Policy.Profile)).
				WithAllow(cfg.Tools.Policy.Allow...).
				WithDeny(cfg.Tools.Policy.Deny...)
			dispatcher.PolicyResolver = policy.NewResolver()
		}
		registerFilesTools(dispatcher, cfg.Workspace.Root)
	}

	role := roleOverride
	assembler := prompt.NewAssembler()
	var tools []dispatch.ToolDescriptor
	if dispatcher != nil {
		tools = dispatcher.ListTools(ctx)
	}
	systemPrompt := assembler.Build(prompt.Options{
		Role:         role,
		ToolsEnabled: cfg.Task.ToolsEnabled,
		Tools:        tools,
		Language:     language,
	})

	tsk := task.New(task.Deps{
		Client:       client,
		Registry:     registry,
		Runtime:      runtime,
		Dispatcher:   dispatcher,
		Bus:          eventBus,
		Tracer:       tracer,
		SystemPrompt: systemPrompt,
		Logger:       logger,
	}, task.Config{
		MaxRounds:    cfg.Task.MaxRounds,
		MaxWallTime:  cfg.Task.MaxWallTime,
		Language:     language,
		ToolsEnabled: cfg.Task.ToolsEnabled,
		GUI:          cfg.Task.GUI,
	})

	if err := tsk.Run(ctx, instruction); err != nil {
		return fmt.Errorf("task run failed: %w", err)
	}
	tsk.Done("")
	return nil
}

// listTools loads config and prints the dispatcher's resolvable tool
// catalog without running a task.
func listTools(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newSlogLogger(cfg.Logging.Level, cfg.Logging.Format)

	dispatcher, err := dispatch.NewDispatcher(cfg.Tools.CatalogPath, cfg.Tools.CallTimeout, logger)
	if err != nil {
		return fmt.Errorf("failed to build tool dispatcher: %w", err)
	}
	defer dispatcher.Close()

	for _, t := range dispatcher.ListTools(ctx) {
		fmt.Printf("%-30s %s\n", t.Name, t.Description)
	}
	return nil
}

func buildLLMClient(cfg config.LLMConfig) (llm.Client, error) {
	name := strings.TrimSpace(cfg.DefaultProvider)
	if name == "" {
		return nil, fmt.Errorf("llm.default_provider is not set")
	}
	provider, ok := cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("no llm.providers entry for %q", name)
	}

	switch {
	case strings.HasPrefix(name, "anthropic"):
		return llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:       provider.APIKey,
			BaseURL:      provider.BaseURL,
			DefaultModel: provider.DefaultModel,
		})
	case strings.HasPrefix(name, "openai"):
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:       provider.APIKey,
			BaseURL:      provider.BaseURL,
			DefaultModel: provider.DefaultModel,
		}), nil
	case strings.HasPrefix(name, "ollama"):
		return llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL:      provider.BaseURL,
			DefaultModel: provider.DefaultModel,
		}), nil
	default:
		return nil, fmt.Errorf("unrecognized llm provider %q", name)
	}
}

// registerFilesTools wires the sandboxed read/write/edit/apply_patch tools
// onto the dispatcher's local tool path, scoped to the task's workspace
// root, so the model can reach them the same way it reaches stdio/MCP
// server tools.
func registerFilesTools(dispatcher *dispatch.Dispatcher, workspace string) {
	cfg := files.Config{Workspace: workspace}
	dispatcher.RegisterFilesTool(filesToolAdapter{files.NewReadTool(cfg)})
	dispatcher.RegisterFilesTool(filesToolAdapter{files.NewWriteTool(cfg)})
	dispatcher.RegisterFilesTool(filesToolAdapter{files.NewEditTool(cfg)})
	dispatcher.RegisterFilesTool(filesToolAdapter{files.NewApplyPatchTool(cfg)})
}

// filesToolAdapter unpacks files.Tool's (*files.Result, error) return onto
// dispatch.FilesTool's (content string, isError bool, err error) contract.
type filesToolAdapter struct {
	tool files.Tool
}

func (a filesToolAdapter) Name() string             { return a.tool.Name() }
func (a filesToolAdapter) Description() string      { return a.tool.Description() }
func (a filesToolAdapter) Schema() json.RawMessage  { return a.tool.Schema() }
func (a filesToolAdapter) Execute(ctx context.Context, params json.RawMessage) (string, bool, error) {
	result, err := a.tool.Execute(ctx, params)
	if err != nil {
		return "", false, err
	}
	return result.Content, result.IsError, nil
}

// buildExecutor selects the block-execution backend named by backend
// ("subprocess" or "embedded"). The embedded gopher-lua backend is the only
// one that can service install_packages/get_env/display/input calls against
// the shared Facade mid-execution; the subprocess backend trades that away
// for running the block in its own interpreter process, so it only suits
// pure-compute blocks that never call back into the host.
func buildExecutor(backend, language string) execruntime.Executor {
	if backend == "embedded" {
		return execruntime.NewLuaExecutor()
	}
	return execruntime.NewSubprocessExecutor(interpreterFor(language), nil, 30*time.Second)
}

func interpreterFor(language string) string {
	switch language {
	case "python":
		return "python3"
	default:
		return language
	}
}

func newSlogLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// busDisplay adapts the event bus onto runtime.DisplaySink, broadcasting
// display() calls as a "display" event for a GUI/terminal subscriber.
type busDisplay struct {
	bus *bus.Bus
}

func (d *busDisplay) Broadcast(pathOrURL string) {
	if d.bus == nil {
		return
	}
	d.bus.Broadcast("display", pathOrURL)
}
