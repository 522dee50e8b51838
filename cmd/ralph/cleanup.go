package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ralphctl/ralph/internal/worktree"
)

var (
	cleanupTeam    string
	cleanupVerbose bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned worktrees from a prior run",
	Long: `Clean up git worktrees left behind by a crashed or interrupted run.

This walks every worktree under <repo>/.ralph-worktrees/<team>/, removes
any whose agent ID does not correspond to a currently running agent, and
runs "git worktree prune --expire now".`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupTeam, "team", "default", "team name whose worktrees to clean up")
	cleanupCmd.Flags().BoolVarP(&cleanupVerbose, "verbose", "v", false, "print each worktree as it is removed")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("ralph cleanup: get working directory: %w", err)
	}
	repoPath, err := findGitRoot(cwd)
	if err != nil {
		return fmt.Errorf("ralph cleanup: %w", err)
	}

	mgr, err := worktree.New(repoPath, cleanupTeam)
	if err != nil {
		return fmt.Errorf("ralph cleanup: create worktree manager: %w", err)
	}

	var verbose func(path string)
	if cleanupVerbose {
		verbose = func(path string) { fmt.Printf("removed %s\n", path) }
	}

	// No agents are running from a standalone CLI invocation, so every
	// ralph-managed worktree for this team is eligible.
	removed, err := mgr.CleanupOrphans(nil, verbose)
	if err != nil {
		return fmt.Errorf("ralph cleanup: %w", err)
	}

	if removed == 0 {
		fmt.Println("no orphaned worktrees found")
		return nil
	}
	fmt.Printf("removed %d orphaned worktree(s)\n", removed)
	return nil
}
