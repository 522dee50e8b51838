package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/ralphctl/ralph/internal/version"
)

// checkProviderCLI verifies that executable is available in PATH, returning
// an actionable error if not. Ralph never inspects what the executable
// does beyond its exit status and stdout/stderr; it only needs the binary
// to exist.
func checkProviderCLI(executable string) error {
	if _, err := exec.LookPath(executable); err != nil {
		return fmt.Errorf("%s CLI not found in PATH\n\n"+
			"ralph drives %s as a subprocess in each agent's worktree; "+
			"install it and make sure it is on PATH before running `ralph run`.",
			executable, executable)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "ralph",
	Short: "Multi-agent orchestrator for AI coding assistants",
	Long: `ralph drives a team of external AI CLI processes to collaboratively
execute a backlog of software-engineering tasks against a single git
repository.

A lead coordinator decomposes the backlog into a dependency-ordered task
graph, spawns task agents that run in isolated git worktrees, and merges
their results back to a target branch, resolving conflicts with a
secondary AI pass when necessary.

Available commands:
  run      Decompose and run a backlog against a repository
  status   Show the task store for a team
  cleanup  Remove orphaned worktrees from a prior run
  init     Write a starter .ralph.yaml into the current directory
  version  Show version information

Use "ralph [command] --help" for more information about a command.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version.Get()
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(initCmd)
}
