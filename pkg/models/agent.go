package models

import "time"

// AgentState is a position in the agent lifecycle state machine.
type AgentState string

const (
	AgentStateSpawning     AgentState = "spawning"
	AgentStateReady        AgentState = "ready"
	AgentStateClaiming     AgentState = "claiming"
	AgentStateWorking      AgentState = "working"
	AgentStateMerging      AgentState = "merging"
	AgentStateIdle         AgentState = "idle"
	AgentStateError        AgentState = "error"
	AgentStateShuttingDown AgentState = "shutting_down"
	AgentStateStopped      AgentState = "stopped"
)

// Valid returns true if the state is a known value.
func (s AgentState) Valid() bool {
	switch s {
	case AgentStateSpawning, AgentStateReady, AgentStateClaiming, AgentStateWorking,
		AgentStateMerging, AgentStateIdle, AgentStateError, AgentStateShuttingDown, AgentStateStopped:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is a resting state the coordinate loop treats
// as "not active" when deciding to exit.
func (s AgentState) Terminal() bool {
	return s == AgentStateIdle || s == AgentStateStopped || s == AgentStateShuttingDown
}

// AgentStats tracks running totals for an agent; LastActivity feeds the
// coordinate loop's stuck-agent detection.
type AgentStats struct {
	TasksCompleted int       `json:"tasksCompleted"`
	TasksFailed    int       `json:"tasksFailed"`
	OutputBytes    int64     `json:"outputBytes"`
	ElapsedMS      int64     `json:"elapsedMs"`
	LastActivity   time.Time `json:"lastActivity"`
}

// Agent is a worker running in a dedicated worktree.
type Agent struct {
	ID string `json:"id"`

	// ModelRef is an opaque reference to whatever model or provider
	// profile the agent was spawned with; the core never interprets it.
	ModelRef string `json:"modelRef,omitempty"`

	WorktreePath        string `json:"worktreePath,omitempty"`
	BranchName          string `json:"branchName,omitempty"`
	SpawnPrompt         string `json:"spawnPrompt,omitempty"`
	RequirePlanApproval bool   `json:"requirePlanApproval,omitempty"`

	State         AgentState `json:"state"`
	CurrentTaskID string     `json:"currentTaskId,omitempty"`

	Stats AgentStats `json:"stats"`

	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a copy of a safe to hand to callers outside the lifecycle
// manager's lock.
func (a *Agent) Clone() *Agent {
	c := *a
	return &c
}
