package runtime

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Confirmer prompts the human operator for yes/no approval of a privileged
// operation. The CLI wires this to stdin/stdout; a headless caller may
// supply an always-deny or always-approve implementation.
type Confirmer interface {
	Confirm(prompt string) bool
	Prompt(prompt string) string
}

// Config governs how the gated operations behave.
type Config struct {
	// AutoInstall, when true, skips the install_packages confirmation
	// prompt and always proceeds.
	AutoInstall bool

	// AutoGetEnv, when true, skips the get_env prompt and returns the
	// caller-supplied default without asking the operator.
	AutoGetEnv bool

	// PackageInstaller runs the host package manager for names not yet
	// recorded as installed in this process. Defaults to `pip install`.
	PackageInstaller func(ctx context.Context, names []string) error
}

// Facade is the `runtime` object exposed to executing code: install
// packages, read env vars, display artifacts, solicit input, and
// dereference sibling blocks by id. It is shared by both execution
// backends (subprocess RPC and embedded Lua) so the gating policy is
// enforced exactly once regardless of which backend ran the code.
type Facade struct {
	cfg       Config
	confirmer Confirmer
	env       *EnvTable
	resolver  BlockResolver
	display   DisplaySink
	logger    *slog.Logger

	mu        sync.Mutex
	installed map[string]bool
}

// BlockResolver dereferences a block id to its source, backing
// get_code_by_id.
type BlockResolver interface {
	GetCode(id string) (string, bool)
}

// DisplaySink receives display() calls. Broadcast is the primary path (the
// event bus fans out a `display` event); TerminalFallback renders inline
// when no GUI sink is present and is optional.
type DisplaySink interface {
	Broadcast(pathOrURL string)
}

// NewFacade builds a runtime facade bound to one task's env table and
// block resolver.
func NewFacade(cfg Config, confirmer Confirmer, env *EnvTable, resolver BlockResolver, display DisplaySink, logger *slog.Logger) *Facade {
	if cfg.PackageInstaller == nil {
		cfg.PackageInstaller = pipInstall
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		cfg:       cfg,
		confirmer: confirmer,
		env:       env,
		resolver:  resolver,
		display:   display,
		logger:    logger.With("component", "runtime.facade"),
		installed: make(map[string]bool),
	}
}

// InstallPackages gates package installation behind auto_install or an
// operator confirmation, then invokes the host installer for any name not
// already installed this process. Returns overall success.
func (f *Facade) InstallPackages(ctx context.Context, names ...string) bool {
	if len(names) == 0 {
		return true
	}

	f.mu.Lock()
	pending := make([]string, 0, len(names))
	for _, n := range names {
		if !f.installed[n] {
			pending = append(pending, n)
		}
	}
	f.mu.Unlock()
	if len(pending) == 0 {
		return true
	}

	if !f.cfg.AutoInstall {
		if f.confirmer == nil || !f.confirmer.Confirm(fmt.Sprintf("install packages %s?", strings.Join(pending, ", "))) {
			f.logger.Info("package install declined", "packages", pending)
			return false
		}
	}

	if err := f.cfg.PackageInstaller(ctx, pending); err != nil {
		f.logger.Warn("package install failed", "packages", pending, "error", err)
		return false
	}

	f.mu.Lock()
	for _, n := range pending {
		f.installed[n] = true
	}
	f.mu.Unlock()
	return true
}

// GetEnv returns the recorded value for name, or its default, or the
// operator-prompted value, applying the auto_getenv gate. A non-empty
// prompted value is recorded into the env table with desc.
func (f *Facade) GetEnv(name, def, desc string) string {
	if entry, ok := f.env.Get(name); ok {
		return entry.Value
	}
	if f.cfg.AutoGetEnv {
		return def
	}
	if f.confirmer == nil {
		return def
	}
	prompt := fmt.Sprintf("enter value for %s", name)
	if desc != "" {
		prompt = fmt.Sprintf("%s (%s)", prompt, desc)
	}
	value := f.confirmer.Prompt(prompt)
	if value != "" {
		f.env.Set(name, value, desc)
		return value
	}
	return def
}

// Display broadcasts a display event for pathOrURL. When no display sink
// is configured this is a no-op; the CLI may wire a terminal-image
// fallback renderer as the sink.
func (f *Facade) Display(pathOrURL string) {
	if f.display != nil {
		f.display.Broadcast(pathOrURL)
	}
}

// Input solicits a line of operator input with prompt.
func (f *Facade) Input(prompt string) string {
	if f.confirmer == nil {
		return ""
	}
	return f.confirmer.Prompt(prompt)
}

// GetCodeByID dereferences a sibling block's source code.
func (f *Facade) GetCodeByID(id string) (string, bool) {
	if f.resolver == nil {
		return "", false
	}
	return f.resolver.GetCode(id)
}

// pipInstall is the default PackageInstaller, shelling out to `pip
// install` for each pending package name.
func pipInstall(ctx context.Context, names []string) error {
	args := append([]string{"install", "--quiet"}, names...)
	cmd := exec.CommandContext(ctx, "pip", args...)
	return cmd.Run()
}

// StdConfirmer implements Confirmer against a process's stdin/stdout via a
// buffered line reader, for interactive CLI use.
type StdConfirmer struct {
	reader *bufio.Reader
	writer func(string)
}

// NewStdConfirmer builds a Confirmer that reads from in and writes
// prompts via write.
func NewStdConfirmer(in *bufio.Reader, write func(string)) *StdConfirmer {
	return &StdConfirmer{reader: in, writer: write}
}

func (c *StdConfirmer) Confirm(prompt string) bool {
	c.writer(prompt + " [y/N] ")
	line, _ := c.reader.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}

func (c *StdConfirmer) Prompt(prompt string) string {
	c.writer(prompt + ": ")
	line, _ := c.reader.ReadString('\n')
	return strings.TrimSpace(line)
}
