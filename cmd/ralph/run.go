package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ralphctl/ralph/internal/conflictresolver"
	"github.com/ralphctl/ralph/internal/decompose"
	"github.com/ralphctl/ralph/internal/gitrunner"
	"github.com/ralphctl/ralph/internal/orchestrator"
	"github.com/ralphctl/ralph/internal/taskagent"
	ralphconfig "github.com/ralphctl/ralph/internal/config"
)

var (
	runTeam    string
	runPlan    string
	runAgents  int
	runVerify  string
	runHeadless bool
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Decompose and run a backlog against the current repository",
	Long: `Run a software-engineering backlog with a team of AI coding agents.

The request is either free-form text describing the work (the lead AI
decomposes it into a dependency-ordered task graph), or, with --plan, the
path to a Markdown checklist document (lines starting with "- [ ]",
grouped by "##" headings).

Each task runs in its own git worktree on its own branch; once a task
completes, its branch is merged back onto the target branch in
dependency order, with AI-assisted conflict resolution when needed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runTeam, "team", "default", "team name; determines where state is persisted")
	runCmd.Flags().StringVar(&runPlan, "plan", "", "path to a Markdown plan document instead of free-form request text")
	runCmd.Flags().IntVar(&runAgents, "agents", 0, "number of task agents to spawn (2-8; other values are rejected); 0 uses config")
	runCmd.Flags().StringVar(&runVerify, "verify", "", "verification command run by each task agent's Verify phase")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "suppress colorized progress output")
}

func runRun(cmd *cobra.Command, args []string) error {
	var request string
	if runPlan == "" {
		if len(args) == 0 {
			return fmt.Errorf("ralph run: either pass a request or --plan <file>")
		}
		request = args[0]
	}

	cfg, err := ralphconfig.Load()
	if err != nil {
		return fmt.Errorf("ralph run: load config: %w", err)
	}
	if runTeam != "" {
		cfg.Team.Name = runTeam
	}
	if runAgents > 0 {
		cfg.Team.AgentCount = runAgents
	}
	if runVerify != "" {
		cfg.Agent.VerifyCommand = runVerify
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("ralph run: %w", err)
	}

	if err := checkProviderCLI(cfg.Provider.Executable); err != nil {
		return err
	}

	repoPath, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("ralph run: get working directory: %w", err)
	}
	repoPath, err = findGitRoot(repoPath)
	if err != nil {
		return fmt.Errorf("ralph run: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	leadProvider := cfg.Provider.ToProvider()
	orchCfg := cfg.ToOrchestratorConfig(repoPath, leadProvider, nil)

	git := gitrunner.NewRunner(repoPath)
	runner := taskagent.ShellRunner{}

	resolver := conflictresolver.New(leadProvider)
	if !runHeadless {
		resolver.SetOnOutput(func(line string) { fmt.Printf("  [resolver] %s\n", line) })
	}

	o, err := orchestrator.New(orchCfg, git, runner, resolver)
	if err != nil {
		return fmt.Errorf("ralph run: %w", err)
	}

	// First interrupt asks every agent to finish its current task; the
	// force stop fires after the grace period, or immediately on a second
	// interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Printf("\nreceived interrupt, requesting graceful shutdown (force stop in %s)...\n", o.ShutdownGrace())
		o.RequestShutdownAll()
		select {
		case <-sigCh:
		case <-time.After(o.ShutdownGrace()):
		case <-ctx.Done():
			return
		}
		fmt.Println("force stopping...")
		cancel()
	}()

	if runPlan != "" {
		source, err := os.ReadFile(runPlan)
		if err != nil {
			return fmt.Errorf("ralph run: read plan doc: %w", err)
		}
		tasks, err := decompose.DecomposeFromPlanDoc(source)
		if err != nil {
			return fmt.Errorf("ralph run: parse plan doc: %w", err)
		}
		if err := o.Store().AddTasks(tasks); err != nil {
			return fmt.Errorf("ralph run: seed plan tasks: %w", err)
		}
		if !runHeadless {
			fmt.Printf("loaded %d tasks from %s\n", len(tasks), runPlan)
		}
	}

	if !runHeadless {
		go printEvents(o.Events())
	}

	summary, err := o.Run(ctx, request)
	if err != nil {
		return fmt.Errorf("ralph run: %w", err)
	}

	printSummary(summary)
	return nil
}

func printEvents(events <-chan orchestrator.Event) {
	for evt := range events {
		switch evt.Type {
		case orchestrator.EventPhaseChanged:
			color.New(color.FgCyan, color.Bold).Printf("==> %s\n", evt.Phase)
		case orchestrator.EventQueueUpdate:
			fmt.Printf("  queue: pending=%d in_progress=%d completed=%d failed=%d\n",
				evt.Stats.Pending, evt.Stats.InProgress, evt.Stats.Completed, evt.Stats.Failed)
		case orchestrator.EventAgentStuck:
			color.New(color.FgYellow).Printf("  [stuck?] agent %s: %s\n", evt.AgentID, evt.Message)
		case orchestrator.EventTaskMerged:
			color.New(color.FgGreen).Printf("  [merged] %s\n", evt.TaskID)
		case orchestrator.EventOverlapWarning:
			color.New(color.FgYellow).Printf("  [overlap] %s\n", evt.Message)
		case orchestrator.EventError:
			color.New(color.FgRed).Printf("  [error] %s: %s\n", evt.Phase, evt.Message)
		case orchestrator.EventPlanEvaluated:
			fmt.Printf("  [plan] %s: %s\n", evt.AgentID, evt.Message)
		}
	}
}

func printSummary(s *orchestrator.Summary) {
	if s == nil {
		return
	}
	fmt.Println()
	color.New(color.Bold).Println("Summary")
	for id, entry := range s.TaskStatuses {
		fmt.Printf("  %-12s %-12s agent=%s\n", id, entry.Status, entry.AgentID)
	}
	if len(s.Findings) > 0 {
		fmt.Println()
		fmt.Println("Findings:")
		for _, f := range s.Findings {
			fmt.Printf("  - %s\n", f)
		}
	}
}

// findGitRoot walks up from dir looking for a .git directory or file
// (worktrees use a .git file pointing at the main repo's gitdir).
func findGitRoot(dir string) (string, error) {
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a git repository (or any parent up to /): %s", dir)
		}
		dir = parent
	}
}
