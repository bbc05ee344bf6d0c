// Package bus implements the single-process, in-memory event bus the task
// loop and its collaborators publish named events on: task_start,
// response_stream, response_complete, exec, result, tool_call, display,
// and summary. Handlers register per event name, by explicit name or by
// the on_<event> naming convention on a loaded Plugin.
package bus

import (
	"log/slog"
	"reflect"
	"strings"
	"sync"
)

// Handler is a generic event handler. broadcast/collect call it with the
// positional args passed to Bus; pipeline calls it with data as the sole
// argument and expects the (possibly mutated) value back as its return.
type Handler func(args ...any) any

// Bus is a named-event pub/sub registry. Safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
	stopped  bool
}

// New returns an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger.With("component", "bus"),
	}
}

// Register adds handler for event, appended after any already registered
// for that name; handlers run in registration order.
func (b *Bus) Register(event string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Stop marks the bus stopped; callers that poll IsStopped cooperatively
// cancel. Delivery methods keep working after Stop — Stop is a signal, not
// a shutdown.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
}

// IsStopped reports whether Stop has been called.
func (b *Bus) IsStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}

func (b *Bus) handlersFor(event string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers[event]))
	copy(out, b.handlers[event])
	return out
}

// Broadcast fires event to every registered handler, fire-and-forget.
// A handler panic is recovered, logged, and does not stop delivery to the
// remaining handlers.
func (b *Bus) Broadcast(event string, args ...any) {
	for _, h := range b.handlersFor(event) {
		b.safeCall(event, h, args)
	}
}

func (b *Bus) safeCall(event string, h Handler, args []any) (result any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", event, "panic", r)
			result = nil
		}
	}()
	return h(args...)
}

// Pipeline threads data through every handler registered for event, in
// registration order; each handler receives the previous handler's return
// value and may mutate or replace it. A handler panic is recovered and
// logged; data passes through unchanged for that handler.
func (b *Bus) Pipeline(event string, data any) any {
	for _, h := range b.handlersFor(event) {
		next := b.safeCall(event, h, []any{data})
		if next != nil {
			data = next
		}
	}
	return data
}

// Collect fires event to every handler and returns their return values in
// registration order. A single panicking handler contributes no value but
// does not abort collection of the rest.
func (b *Bus) Collect(event string, args ...any) []any {
	handlers := b.handlersFor(event)
	out := make([]any, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, b.safeCall(event, h, args))
	}
	return out
}

// onPrefix is the Go-idiomatic spelling of the source's on_<event>
// registration-by-convention: since only exported (capitalized) methods
// are visible to reflection, an exported OnTaskStart method registers for
// the "task_start" event (CamelCase lowered to snake_case).
const onPrefix = "On"

// RegisterPlugin inspects plugin's methods by reflection and registers
// every On<Event> method for the <event> suffix (CamelCase converted to
// snake_case). Matching methods are called with the positional args
// Broadcast/Collect pass, or the single argument Pipeline passes, converted
// to and from any via reflection; methods with no return value register
// fine for Broadcast/Collect but pass data through unchanged under
// Pipeline.
func RegisterPlugin(b *Bus, plugin any) {
	v := reflect.ValueOf(plugin)
	t := v.Type()
	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		if !strings.HasPrefix(method.Name, onPrefix) || len(method.Name) <= len(onPrefix) {
			continue
		}
		event := camelToSnake(method.Name[len(onPrefix):])
		boundMethod := v.Method(i)
		b.Register(event, reflectHandler(boundMethod))
	}
}

func camelToSnake(s string) string {
	var out strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out.WriteByte('_')
			}
			out.WriteRune(r - 'A' + 'a')
		} else {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func reflectHandler(method reflect.Value) Handler {
	return func(args ...any) any {
		methodType := method.Type()
		numIn := methodType.NumIn()
		in := make([]reflect.Value, 0, numIn)
		for i := 0; i < numIn && i < len(args); i++ {
			in = append(in, argToReflectValue(args[i], methodType.In(i)))
		}
		for len(in) < numIn {
			in = append(in, reflect.Zero(methodType.In(len(in))))
		}
		out := method.Call(in)
		if len(out) == 0 {
			return nil
		}
		return out[0].Interface()
	}
}

func argToReflectValue(arg any, want reflect.Type) reflect.Value {
	if arg == nil {
		return reflect.Zero(want)
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(want) {
		return v
	}
	if v.Type().ConvertibleTo(want) {
		return v.Convert(want)
	}
	return reflect.Zero(want)
}
