// Package main provides the CLI entry point for aipy, a single-process
// coding agent that drives one instruction through repeated LLM/execute
// rounds against a sandboxed local workspace.
//
// # Basic Usage
//
// Run a task with the default config:
//
//	aipy run "plot y = x^2 from -10 to 10 and save it as a png"
//
// Run with a custom config:
//
//	aipy run --config aipy.yaml "..."
//
// # Environment Variables
//
//   - AIPY_CONFIG: Path to configuration file (default: aipy.yaml)
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY: provider credentials, referenced
//     from the config file via `${ANTHROPIC_API_KEY}`-style expansion.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aipy",
		Short: "Run coding tasks with an LLM-driven execute loop",
		Long: `aipy assembles a system prompt, sends a task instruction to an LLM
provider, and executes any code blocks or tool calls the reply contains,
feeding results back until the model stops asking for more rounds.`,
		Version: fmt.Sprintf("%s (%s)", version, commit),
	}

	cmd.AddCommand(buildRunCmd(), buildToolsCmd())
	return cmd
}
