package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	initForce    bool
	initProvider string
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Write a starter .ralph.yaml into a project",
	Long: `Initialize a directory for use with ralph.

Writes a starter .ralph.yaml with a default team, provider, and merge
configuration, and verifies that git and the configured AI CLI are on
PATH. The directory argument defaults to the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing .ralph.yaml")
	initCmd.Flags().StringVar(&initProvider, "provider", "claude", "AI CLI executable to configure as the default provider")
}

const starterConfigTemplate = `team:
  name: default
  agent_count: 3
  assignment: same_as_lead
  lead_driven: false

provider:
  executable: %s
  uses_prompt_argument: true
  prompt_flag: "-p"
  uses_stream_json: true

agent:
  enable_plan: true
  enable_code: true
  enable_verify: true
  verify_command: ""
  require_plan_approval: false

merge:
  strategy: rebase_then_merge
  max_concurrent_merges: 1
  lock_timeout: 10s

timeouts:
  coordinate_interval: 1s
  stuck_multiplier: 2.0
  stale_claim_timeout: 15m
  shutdown_grace: 60s
`

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("ralph init: resolve %s: %w", targetDir, err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return fmt.Errorf("ralph init: create %s: %w", absPath, err)
	}

	fmt.Printf("Initializing ralph in %s...\n\n", absPath)

	if _, err := exec.LookPath("git"); err != nil {
		printInitStatus("x", "git not found", color.FgRed)
		return fmt.Errorf("ralph init: git not found in PATH")
	}
	printInitStatus("+", "git found", color.FgGreen)

	if err := checkProviderCLI(initProvider); err != nil {
		printInitStatus("!", fmt.Sprintf("%s CLI not found (set it up before running `ralph run`)", initProvider), color.FgYellow)
	} else {
		printInitStatus("+", fmt.Sprintf("%s CLI found", initProvider), color.FgGreen)
	}

	configPath := filepath.Join(absPath, ".ralph.yaml")
	if _, err := os.Stat(configPath); err == nil && !initForce {
		fmt.Printf("\n%s already exists. Use --force to overwrite.\n", configPath)
		return nil
	}

	content := fmt.Sprintf(starterConfigTemplate, initProvider)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("ralph init: write %s: %w", configPath, err)
	}
	printInitStatus("+", fmt.Sprintf("wrote %s", configPath), color.FgGreen)

	fmt.Println("\nNext: edit .ralph.yaml, then run `ralph run \"<request>\"`.")
	return nil
}

func printInitStatus(icon, msg string, c color.Attribute) {
	color.New(c).Printf("[%s] %s\n", icon, msg)
}
