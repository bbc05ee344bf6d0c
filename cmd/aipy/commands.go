// commands.go contains all cobra command definitions and their flag
// configurations. Each command builder function creates a command and
// wires it to its handler.
package main

import (
	"strings"

	"github.com/spf13/cobra"
)

const defaultConfigName = "aipy.yaml"

func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) == "" {
		return defaultConfigName
	}
	return path
}

// =============================================================================
// Run Command
// =============================================================================

// buildRunCmd creates the "run" command, the primary entry point: load
// config, assemble the system prompt, and drive the task loop to
// completion against a single instruction.
func buildRunCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		role       string
		language   string
	)

	cmd := &cobra.Command{
		Use:   "run [instruction]",
		Short: "Run a task instruction to completion",
		Long: `Run assembles the system prompt, sends the instruction to the
configured LLM provider, and executes any code blocks or tool calls the
reply contains, feeding results back for further rounds until the model
stops asking for more, the round cap is hit, or the task is interrupted.`,
		Example: `  # Run with the default config
  aipy run "write a fibonacci function and test it"

  # Run with a custom config and role
  aipy run --config aipy.yaml --role data_scientist "summarize sales.csv"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runTask(cmd.Context(), configPath, args[0], debug, role, language)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName,
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")
	cmd.Flags().StringVar(&role, "role", "",
		"Role tip to load from the tips directory (overrides config default)")
	cmd.Flags().StringVar(&language, "language", "",
		"Executable block language (overrides config default)")

	return cmd
}

// =============================================================================
// Tools Command
// =============================================================================

// buildToolsCmd creates the "tools" command group for inspecting the tool
// dispatch catalog without running a task.
func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool dispatch catalog",
	}
	cmd.AddCommand(buildToolsListCmd())
	return cmd
}

func buildToolsListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tools currently resolvable by the dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return listTools(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName,
		"Path to YAML configuration file")
	return cmd
}
