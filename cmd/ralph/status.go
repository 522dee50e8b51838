package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	ralphconfig "github.com/ralphctl/ralph/internal/config"
	"github.com/ralphctl/ralph/internal/taskstore"
	"github.com/ralphctl/ralph/pkg/models"
)

var statusTeam string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the task store for a team",
	Long: `Display the persisted task store for a team: every task's status,
claiming agent, merge status, and retry count.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusTeam, "team", "default", "team name to report on")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := ralphconfig.Load()
	if err != nil {
		return fmt.Errorf("ralph status: load config: %w", err)
	}
	team := cfg.Team.Name
	if statusTeam != "" {
		team = statusTeam
	}

	store := taskstore.New(cfg.Team.BaseDir, team)
	if err := store.Load(); err != nil {
		return fmt.Errorf("ralph status: load task store: %w", err)
	}

	tasks := store.GetAll()
	if len(tasks) == 0 {
		fmt.Printf("no tasks recorded for team %q\n", team)
		return nil
	}

	var pending, inProgress, completed, failed int
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusPending:
			pending++
		case models.TaskStatusInProgress:
			inProgress++
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusFailed:
			failed++
		}
	}
	color.New(color.Bold).Printf("team %q: %d tasks\n", team, len(tasks))
	fmt.Printf("  pending=%d in_progress=%d completed=%d failed=%d\n\n", pending, inProgress, completed, failed)

	for _, t := range tasks {
		statusColor := statusColorFor(t.Status)
		statusColor.Printf("  %-10s %-12s", t.ID, t.Status)
		fmt.Printf(" merge=%-18s retries=%d/%d", t.MergeStatus, t.RetryCount, t.MaxRetries)
		if t.ClaimedByAgentID != "" {
			fmt.Printf(" agent=%s", t.ClaimedByAgentID)
		}
		fmt.Printf("  %s\n", t.Title)
		if t.Error != "" {
			color.New(color.FgRed).Printf("    error: %s\n", t.Error)
		}
	}
	return nil
}

func statusColorFor(s models.TaskStatus) *color.Color {
	switch s {
	case models.TaskStatusCompleted:
		return color.New(color.FgGreen)
	case models.TaskStatusFailed:
		return color.New(color.FgRed)
	case models.TaskStatusInProgress:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}
