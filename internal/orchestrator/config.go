package orchestrator

import (
	"time"

	"github.com/ralphctl/ralph/internal/aiprocess"
	"github.com/ralphctl/ralph/internal/merge"
	"github.com/ralphctl/ralph/internal/taskagent"
)

// minAgents and maxAgents clamp the configured agent count.
const (
	minAgents = 2
	maxAgents = 8
)

// AssignmentStrategy selects how models are paired with spawned agents.
type AssignmentStrategy string

const (
	AssignSameAsLead AssignmentStrategy = "same_as_lead"
	AssignPerAgent   AssignmentStrategy = "per_agent"
	AssignRoundRobin AssignmentStrategy = "round_robin"
)

// DefaultMaxUnparseableDecisions bounds consecutive unparseable lead-AI
// responses before the lead-driven mode falls back to pure sequential
// fast-path ("Lead-driven alternative").
const DefaultMaxUnparseableDecisions = 3

// Config configures one team's orchestrator run.
type Config struct {
	// Team names the run; paths are rooted at <BaseDir>/teams/<Team>.
	Team string
	// BaseDir is the user-scoped base directory (conventionally
	// ~/.ralph), per the filesystem layout.
	BaseDir string
	// RepoPath is the git repository task agents work in; worktrees are
	// created beneath <RepoPath>/.ralph-worktrees/<Team>/.
	RepoPath string

	// AgentCount is the number of task agents to spawn, clamped to
	// [2, 8].
	AgentCount int
	// Assignment selects how AgentProviders are paired with agents.
	Assignment AssignmentStrategy

	// LeadProvider invokes the lead AI for decomposition and lead-driven
	// failed-task disposition; plan evaluation itself is rule-driven and
	// needs no AI call.
	LeadProvider aiprocess.Provider
	// AgentProviders supplies one or more task-agent providers; how many
	// of them are used depends on Assignment.
	AgentProviders []aiprocess.Provider

	// AgentOptions configures each task agent's Plan/Code/Verify phases.
	AgentOptions taskagent.Options
	// MergeConfig configures the merge manager's strategy and timeouts.
	MergeConfig merge.Config

	// CoordinateInterval is the coordinate loop's polling cadence
	// (default ~1s).
	CoordinateInterval time.Duration
	// StuckMultiplier is the stuck-agent detection threshold as a
	// multiple of the team's average task duration (default 2: an agent
	// working more than 2x the average with no recent activity is
	// flagged as possibly stuck).
	StuckMultiplier float64

	// LeadDriven selects the simplified orchestration mode that
	// consults the lead AI only for failed-task disposition, skipping
	// its per-message coordination role otherwise.
	LeadDriven bool
	// MaxUnparseableDecisions bounds consecutive unparseable lead
	// decisions before permanently falling back to pure sequential
	// fast-path.
	MaxUnparseableDecisions int

	// CleanupWorktreesOnFailedTask controls whether a failed task's
	// worktree is torn down during cleanup or left for inspection.
	CleanupWorktreesOnFailedTask bool

	// StaleClaimTimeout overrides the task store's default stale-claim
	// window (release_stale_claims). Zero keeps the store's
	// built-in default.
	StaleClaimTimeout time.Duration

	// ShutdownGrace is how long a graceful shutdown waits for agents to
	// finish their current tasks before the caller force-cancels (default
	// 60s).
	ShutdownGrace time.Duration
}

func (c *Config) setDefaults() {
	if c.AgentCount < minAgents {
		c.AgentCount = minAgents
	}
	if c.AgentCount > maxAgents {
		c.AgentCount = maxAgents
	}
	if c.Assignment == "" {
		c.Assignment = AssignSameAsLead
	}
	if c.CoordinateInterval <= 0 {
		c.CoordinateInterval = time.Second
	}
	if c.StuckMultiplier <= 0 {
		c.StuckMultiplier = 2.0
	}
	if c.MaxUnparseableDecisions <= 0 {
		c.MaxUnparseableDecisions = DefaultMaxUnparseableDecisions
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 60 * time.Second
	}
}

// providerFor returns the AI provider agent index i (0-based) should use,
// per the configured assignment strategy.
func (c *Config) providerFor(i int) aiprocess.Provider {
	if len(c.AgentProviders) == 0 {
		return c.LeadProvider
	}
	switch c.Assignment {
	case AssignPerAgent:
		if i < len(c.AgentProviders) {
			return c.AgentProviders[i]
		}
		return c.AgentProviders[len(c.AgentProviders)-1]
	case AssignRoundRobin:
		return c.AgentProviders[i%len(c.AgentProviders)]
	case AssignSameAsLead:
		fallthrough
	default:
		return c.LeadProvider
	}
}
