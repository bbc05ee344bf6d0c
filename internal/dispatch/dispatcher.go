package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aipy-go/aipy/internal/tools/policy"
)

// ArgRewriter optionally rewrites a tool call's arguments after parsing
// but before scoring, covering the source's process_mcp_reply-style
// argument mutation via an explicit hook rather than an implicit
// event-bus pipeline step.
type ArgRewriter func(name string, args json.RawMessage) json.RawMessage

// Dispatcher resolves tool names against a catalog of stdio tool servers,
// caches their schemas, and tracks global/per-server enable state.
type Dispatcher struct {
	catalogPath string
	callTimeout time.Duration
	logger      *slog.Logger

	mu              sync.RWMutex
	globallyEnabled bool
	serverEnabled   map[string]bool
	toolsCache      map[string][]ToolDescriptor
	localTools      map[string]LocalTool

	ArgRewriter ArgRewriter

	// Policy, when non-nil, gates CallTool ahead of server/catalog
	// resolution: a tool the policy denies is rejected before candidates
	// are even scored. PolicyResolver defaults to policy.NewResolver() if
	// Policy is set but PolicyResolver is left nil.
	Policy         *policy.Policy
	PolicyResolver *policy.Resolver

	watcher *fsnotify.Watcher
}

// NewDispatcher loads server enable-state defaults from the catalog file
// at catalogPath (without yet populating the tools cache; call ListTools
// for that) and starts an fsnotify watch on the catalog's directory so
// external edits proactively invalidate the in-memory cache, defense in
// depth atop the mtime/age check ListTools performs unconditionally.
func NewDispatcher(catalogPath string, callTimeout time.Duration, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	d := &Dispatcher{
		catalogPath:   catalogPath,
		callTimeout:   callTimeout,
		logger:        logger.With("component", "dispatch"),
		serverEnabled: make(map[string]bool),
		toolsCache:    make(map[string][]ToolDescriptor),
	}

	catalog, err := loadCatalog(catalogPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	for name, entry := range catalog.MCPServers {
		d.serverEnabled[name] = entry.effectiveEnabled()
	}

	if watcher, werr := fsnotify.NewWatcher(); werr == nil {
		d.watcher = watcher
		if werr := watcher.Add(dirOf(catalogPath)); werr == nil {
			go d.watchLoop()
		}
	}

	return d, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func (d *Dispatcher) watchLoop() {
	for event := range d.watcher.Events {
		if event.Name == d.catalogPath && (event.Op&(fsnotify.Write|fsnotify.Create) != 0) {
			d.mu.Lock()
			d.toolsCache = make(map[string][]ToolDescriptor)
			d.mu.Unlock()
		}
	}
}

// Close stops the catalog watcher.
func (d *Dispatcher) Close() {
	if d.watcher != nil {
		d.watcher.Close()
	}
}

func loadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	return c, nil
}

// SetGloballyEnabled toggles the dispatcher's master switch.
func (d *Dispatcher) SetGloballyEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.globallyEnabled = enabled
}

// ListTools returns all tools from enabled servers, using the sibling
// cache if fresh and otherwise refreshing it from each enabled stdio
// server. Returns empty immediately if the dispatcher is not globally
// enabled, regardless of cache state (P8).
func (d *Dispatcher) ListTools(ctx context.Context) []ToolDescriptor {
	d.mu.RLock()
	enabled := d.globallyEnabled
	d.mu.RUnlock()
	if !enabled {
		return nil
	}

	catalog, err := loadCatalog(d.catalogPath)
	if err != nil {
		d.logger.Warn("failed to load tool catalog", "error", err)
		return nil
	}
	catalogMTime, _ := fileMTime(d.catalogPath)

	d.mu.Lock()
	cached := d.toolsCache
	d.mu.Unlock()

	if len(cached) == 0 {
		if cf, ok := loadCache(d.catalogPath); ok {
			if info, statErr := os.Stat(cachePath(d.catalogPath)); statErr == nil && isCacheFresh(cf, catalogMTime, info.ModTime()) {
				d.mu.Lock()
				d.toolsCache = cf.ToolsCache
				cached = cf.ToolsCache
				d.mu.Unlock()
			}
		}
	}

	if len(cached) == 0 {
		cached = d.refresh(ctx, catalog, catalogMTime)
	}

	var out []ToolDescriptor
	for server, tools := range cached {
		if !d.isServerEnabled(server) {
			continue
		}
		out = append(out, tools...)
	}

	if d.isServerEnabled(localServerName) {
		d.mu.RLock()
		for _, tool := range d.localTools {
			out = append(out, localToolDescriptor(tool))
		}
		d.mu.RUnlock()
	}
	return out
}

func (d *Dispatcher) refresh(ctx context.Context, catalog Catalog, catalogMTime int64) map[string][]ToolDescriptor {
	fresh := make(map[string][]ToolDescriptor, len(catalog.MCPServers))
	for name, entry := range catalog.MCPServers {
		if !d.isServerEnabled(name) {
			continue
		}
		fresh[name] = fetchServerTools(ctx, name, entry, d.callTimeout, d.logger)
	}

	d.mu.Lock()
	d.toolsCache = fresh
	d.mu.Unlock()

	if err := saveCache(d.catalogPath, catalogMTime, fresh); err != nil {
		d.logger.Warn("failed to persist tool cache", "error", err)
	}
	return fresh
}

func (d *Dispatcher) isServerEnabled(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	enabled, ok := d.serverEnabled[name]
	if !ok {
		return true
	}
	return enabled
}

// CallTool scores cached tools by name and argument fit, then dispatches
// to the highest-scoring server. See scoreCandidates for the formula.
func (d *Dispatcher) CallTool(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	if d.ArgRewriter != nil {
		arguments = d.ArgRewriter(name, arguments)
	}

	if d.Policy != nil {
		resolver := d.PolicyResolver
		if resolver == nil {
			resolver = policy.NewResolver()
		}
		if decision := resolver.Decide(d.Policy, name); !decision.Allowed {
			return nil, fmt.Errorf("tool_denied: %s (%s)", name, decision.Reason)
		}
	}

	d.mu.RLock()
	globallyEnabled := d.globallyEnabled
	cached := d.toolsCache
	local, isLocal := d.localTools[name]
	d.mu.RUnlock()
	if !globallyEnabled {
		return nil, fmt.Errorf("unknown_tool: %s (tool dispatch disabled)", name)
	}
	if isLocal && d.isServerEnabled(localServerName) {
		return callLocalTool(ctx, local, arguments)
	}

	var candidates []ToolDescriptor
	for server, tools := range cached {
		if !d.isServerEnabled(server) {
			continue
		}
		for _, t := range tools {
			if t.Name == name {
				candidates = append(candidates, t)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("unknown_tool: %s", name)
	}

	var args map[string]json.RawMessage
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	validated := make([]ToolDescriptor, 0, len(candidates))
	for _, c := range candidates {
		if err := validateAgainstSchema(c, arguments); err == nil {
			validated = append(validated, c)
		}
	}
	pool := validated
	if len(pool) == 0 {
		// No candidate passed strict schema validation; fall back to the
		// full candidate set so a sole-candidate failure still surfaces
		// as an ordinary scoring/required-parameter error rather than a
		// silent validation rejection.
		pool = candidates
	}

	chosen, ok := selectBestCandidate(pool, args)
	if !ok {
		return nil, fmt.Errorf("unknown_tool: %s (no candidate satisfies required parameters)", name)
	}

	catalog, err := loadCatalog(d.catalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	entry, ok := catalog.MCPServers[chosen.Server]
	if !ok {
		return nil, fmt.Errorf("server %q not found in catalog", chosen.Server)
	}

	return callServerTool(ctx, entry, d.callTimeout, name, arguments)
}

// selectBestCandidate implements the source's scoring formula:
// score = matching_props - 0.1*extra_args, where matching_props counts
// argument keys present in the tool's schema properties and extra_args is
// the remainder of the supplied arguments. Candidates missing a required
// parameter are excluded first. Ties break by first-encountered order.
func selectBestCandidate(candidates []ToolDescriptor, args map[string]json.RawMessage) (ToolDescriptor, bool) {
	type scored struct {
		tool  ToolDescriptor
		score float64
		index int
	}

	var eligible []scored
	for i, t := range candidates {
		if !hasAllRequired(t, args) {
			continue
		}
		matching := 0
		for k := range args {
			if _, ok := t.InputSchema.Properties[k]; ok {
				matching++
			}
		}
		extra := len(args) - matching
		score := float64(matching) - 0.1*float64(extra)
		eligible = append(eligible, scored{tool: t, score: score, index: i})
	}
	if len(eligible) == 0 {
		return ToolDescriptor{}, false
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].score > eligible[j].score
	})
	return eligible[0].tool, true
}

func hasAllRequired(t ToolDescriptor, args map[string]json.RawMessage) bool {
	for _, req := range t.InputSchema.Required {
		if _, ok := args[req]; !ok {
			return false
		}
	}
	return true
}

// ProcessCommand toggles globally_enabled (when server is empty) or a
// named server's enable state (or all servers, via "*"). verb must be
// "enable", "disable", "list", or "refresh".
func (d *Dispatcher) ProcessCommand(verb, server string) StatusResult {
	verb = strings.ToLower(strings.TrimSpace(verb))
	switch verb {
	case "refresh":
		d.mu.Lock()
		defer d.mu.Unlock()
		d.toolsCache = make(map[string][]ToolDescriptor)
		return StatusResult{Status: "ok"}

	case "list":
		d.mu.RLock()
		defer d.mu.RUnlock()
		servers := make(map[string]bool, len(d.serverEnabled))
		for k, v := range d.serverEnabled {
			servers[k] = v
		}
		return StatusResult{Status: "ok", Servers: servers, GloballyEnabled: d.globallyEnabled}

	case "enable", "disable":
		enabled := verb == "enable"
		d.mu.Lock()
		defer d.mu.Unlock()
		if server == "" {
			d.globallyEnabled = enabled
			return StatusResult{Status: "ok", GloballyEnabled: d.globallyEnabled}
		}
		if server == "*" {
			for k := range d.serverEnabled {
				d.serverEnabled[k] = enabled
			}
			return StatusResult{Status: "ok"}
		}
		d.serverEnabled[server] = enabled
		return StatusResult{Status: "ok"}

	default:
		return StatusResult{Status: "error", Message: "unrecognized command verb: " + verb}
	}
}
