package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/aipy-go/aipy/internal/blocks"
	"github.com/aipy-go/aipy/internal/bus"
	"github.com/aipy-go/aipy/internal/dispatch"
	"github.com/aipy-go/aipy/internal/history"
	"github.com/aipy-go/aipy/internal/llm"
	"github.com/aipy-go/aipy/internal/observability"
	execruntime "github.com/aipy-go/aipy/internal/runtime"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// userPromptEnvelope is the first-round JSON payload the source calls
// build_user_prompt: task instruction plus environment hints the model
// uses to decide where/how to write files and which language to reply in.
type userPromptEnvelope struct {
	Task               string `json:"task"`
	PythonVersion      string `json:"python_version,omitempty"`
	Platform           string `json:"platform"`
	Today              string `json:"today"`
	Locale             string `json:"locale,omitempty"`
	WorkDirHint        string `json:"work_dir_hint"`
	ThinkReplyLanguage string `json:"think_and_reply_language,omitempty"`
	Matplotlib         string `json:"matplotlib,omitempty"`
	Term               string `json:"TERM,omitempty"`
}

// Task drives one instruction through repeated LLM/execute-or-dispatch
// rounds. Not safe for concurrent Run calls on the same Task; Stop may be
// called from any goroutine.
type Task struct {
	ID     string
	config Config
	logger *slog.Logger

	client     llm.Client
	history    *history.ChatHistory
	registry   *blocks.Registry
	runtime    *execruntime.Runtime
	dispatcher *dispatch.Dispatcher
	bus        *bus.Bus
	tracer     *observability.Tracer

	systemPrompt string
	instruction  string
	startTime    time.Time
	stop         stopFlag

	codeErrors []observability.CodeErrorEvent
}

// Deps bundles the collaborators a Task is wired to.
type Deps struct {
	Client       llm.Client
	Registry     *blocks.Registry
	Runtime      *execruntime.Runtime
	Dispatcher   *dispatch.Dispatcher // nil if tools disabled
	Bus          *bus.Bus
	Tracer       *observability.Tracer
	SystemPrompt string
	Logger       *slog.Logger
}

// New builds a Task with a fresh id and empty history.
func New(deps Deps, config Config) *Task {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Task{
		ID:           uuid.NewString(),
		config:       config,
		logger:       logger.With("component", "task"),
		client:       deps.Client,
		history:      history.New(),
		registry:     deps.Registry,
		runtime:      deps.Runtime,
		dispatcher:   deps.Dispatcher,
		bus:          deps.Bus,
		tracer:       deps.Tracer,
		systemPrompt: deps.SystemPrompt,
	}
}

// Stop requests cooperative cancellation; the loop observes it between
// rounds. In-flight LLM/tool calls are allowed to complete.
func (t *Task) Stop() { t.stop.Stop() }

// IsStopped reports whether Stop has been called.
func (t *Task) IsStopped() bool { return t.stop.IsStopped() }

// Run executes the round loop for instruction until the reply contains
// neither an execute directive nor a tool call, the round cap is reached,
// or the task is stopped. Safe to call again on the same Task with a new
// instruction (continues the same history, sends instruction with no
// system prompt, matching the source's "subsequent run() calls are bare
// follow-ups" behavior).
func (t *Task) Run(ctx context.Context, instruction string) error {
	runCtx := ctx
	var cancel context.CancelFunc
	if t.config.MaxWallTime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.config.MaxWallTime)
		defer cancel()
	}

	firstInvocation := t.startTime.IsZero()
	if firstInvocation {
		t.startTime = time.Now()
		t.instruction = instruction
	}

	round := 1
	var turn string
	var systemPrompt string
	if firstInvocation {
		envelope := t.buildUserPromptEnvelope(instruction)
		t.broadcast("task_start", envelope)
		encoded, err := json.Marshal(envelope)
		if err != nil {
			return fmt.Errorf("encode user prompt envelope: %w", err)
		}
		turn = string(encoded)
		systemPrompt = t.systemPrompt
	} else {
		turn = instruction
	}

	for round <= t.config.MaxRounds {
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		default:
		}

		roundCtx, span := t.startSpan(runCtx, "task.round")
		reply, err := t.send(roundCtx, turn, systemPrompt)
		t.endSpan(span)
		systemPrompt = ""
		if err != nil {
			return err
		}
		if reply == nil {
			break
		}

		feedback, keepGoing := t.processReply(roundCtx, reply.Content)
		if !keepGoing {
			break
		}
		turn = feedback
		round++

		if t.IsStopped() {
			t.logger.Info("task stopped", "id", t.ID, "round", round)
			break
		}
	}

	t.broadcastSummary()
	return nil
}

// send wraps client.Send, recording the reply to history and broadcasting
// stream chunks over the bus. On provider error the reply is discarded
// per the Client contract: error replies are never added to history.
func (t *Task) send(ctx context.Context, prompt, systemPrompt string) (*llm.ChatMessage, error) {
	sink := &busStreamSink{bus: t.bus}
	fullHistory := t.history.GetMessages()
	t.history.Add(llm.RoleUser, prompt)

	reply, err := t.client.Send(ctx, fullHistory, prompt, systemPrompt, sink)
	if err != nil {
		return nil, err
	}
	t.history.AddMessage(reply)
	t.broadcast("response_complete", reply)
	return &reply, nil
}

// processReply implements spec.md's feedback-construction branches:
// parse errors, exec blocks, tool call, or end-of-round. Returns the next
// turn's content and whether the loop should continue.
func (t *Task) processReply(ctx context.Context, content string) (string, bool) {
	parseResult := t.registry.Parse(content, t.config.ToolsEnabled && t.dispatcher != nil)

	if len(parseResult.Errors) > 0 {
		t.broadcast("result", parseResult.Errors)
		encoded, _ := json.MarshalIndent(parseResult.Errors, "", "  ")
		return fmt.Sprintf("# Message parse errors\n%s", encoded), true
	}

	if len(parseResult.ExecBlock) > 0 {
		return t.processCodeReply(ctx, parseResult.ExecBlock), true
	}

	if parseResult.ToolCall != "" {
		return t.processToolReply(ctx, parseResult.ToolCall), true
	}

	return "", false
}

func (t *Task) processCodeReply(ctx context.Context, execBlocks []blocks.CodeBlock) string {
	results := make([]execruntime.ExecResult, 0, len(execBlocks))
	for _, block := range execBlocks {
		t.broadcast("exec", block)
		_, span := t.startSpan(ctx, "task.exec_block")
		result := t.runtime.Run(ctx, block)
		t.endSpan(span)
		if result.ErrStr != "" {
			t.codeErrors = append(t.codeErrors, observability.CodeErrorEvent{
				TaskID:    t.ID,
				BlockID:   block.ID,
				ErrStr:    result.ErrStr,
				Traceback: result.Traceback,
			})
		}
		results = append(results, result)
		t.broadcast("result", result)
	}

	var encoded []byte
	if len(results) == 1 {
		encoded, _ = json.MarshalIndent(results[0], "", "  ")
	} else {
		encoded, _ = json.MarshalIndent(results, "", "    ")
	}
	return fmt.Sprintf("# Original task\n%s\n\n# Code execution results\n%s", t.instruction, encoded)
}

func (t *Task) processToolReply(ctx context.Context, toolCallJSON string) string {
	t.broadcast("tool_call", toolCallJSON)

	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	}
	if err := json.Unmarshal([]byte(toolCallJSON), &call); err != nil {
		return fmt.Sprintf("# Original task\n%s\n\n# Execution result\n{\"error\":\"invalid tool call JSON: %s\"}", t.instruction, err)
	}

	_, span := t.startSpan(ctx, "task.tool_call")
	result, err := t.dispatcher.CallTool(ctx, call.Name, call.Arguments)
	t.endSpan(span)

	var encoded []byte
	if err != nil {
		encoded, _ = json.MarshalIndent(map[string]string{"error": err.Error()}, "", "  ")
	} else {
		encoded, _ = json.MarshalIndent(json.RawMessage(result), "", "  ")
	}
	t.broadcast("result", encoded)

	return fmt.Sprintf("# MCP invocation\n%s\n\n# Execution result\n%s", t.instruction, encoded)
}

func (t *Task) buildUserPromptEnvelope(instruction string) userPromptEnvelope {
	envelope := userPromptEnvelope{
		Task:        instruction,
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		Today:       time.Now().Format("2006-01-02"),
		WorkDirHint: "work in the current directory; create files there by default",
	}
	if t.config.GUI {
		envelope.Matplotlib = "the matplotlib backend is non-interactive (Agg); save figures with plt.savefig() and display them via runtime.display(), never plt.show()"
	}
	return envelope
}

func (t *Task) broadcast(event string, payload any) {
	if t.bus == nil {
		return
	}
	t.bus.Broadcast(event, payload)
}

func (t *Task) broadcastSummary() {
	summary := t.history.GetSummary()
	elapsed := time.Since(t.startTime).Seconds()
	line := fmt.Sprintf("| %d | %.3fs/%.3fs | Tokens: %d/%d/%d",
		summary.Rounds, summary.Time, elapsed, summary.InputTokens, summary.OutputTokens, summary.TotalTokens)
	t.broadcast("summary", line)
}

func (t *Task) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if t.tracer == nil {
		return ctx, nil
	}
	return t.tracer.Start(ctx, name)
}

func (t *Task) endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// busStreamSink adapts llm.StreamSink onto the event bus's response_stream
// pipeline, matching spec.md's rule that control markers are filtered only
// on the broadcast channel, never on the persisted ChatMessage content.
// Each stream is line-buffered independently since a marker comment may
// span two deltas.
type busStreamSink struct {
	bus          *bus.Bus
	contentLines lineBuffer
	reasonLines  lineBuffer
}

func (s *busStreamSink) OnContent(delta string) {
	s.emit(delta, false, &s.contentLines)
}

func (s *busStreamSink) OnReasoning(delta string) {
	s.emit(delta, true, &s.reasonLines)
}

func (s *busStreamSink) emit(delta string, reason bool, buf *lineBuffer) {
	if s.bus == nil {
		return
	}
	lines := buf.feed(delta)
	if len(lines) == 0 {
		return
	}
	content := filterControlMarkerLines(lines)
	if content == "" {
		return
	}
	s.bus.Pipeline("response_stream", map[string]any{"content": content, "reason": reason})
}
