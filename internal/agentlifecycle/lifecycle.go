// Package agentlifecycle implements the worker state machine:
// spawning -> ready -> claiming -> working -> merging -> idle, with error
// and graceful-shutdown paths. Every transition is observable through a
// typed event channel rather than a reference-captured callback, so the
// orchestrator never holds a back-pointer into an agent.
package agentlifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/ralphctl/ralph/pkg/models"
)

// transitions enumerates the legal edges of the state machine in the
// diagram. A transition not listed here is rejected.
var transitions = map[models.AgentState][]models.AgentState{
	models.AgentStateSpawning:     {models.AgentStateReady, models.AgentStateError},
	models.AgentStateReady:        {models.AgentStateClaiming, models.AgentStateShuttingDown},
	models.AgentStateClaiming:     {models.AgentStateWorking, models.AgentStateIdle, models.AgentStateShuttingDown},
	models.AgentStateWorking:      {models.AgentStateMerging, models.AgentStateError, models.AgentStateShuttingDown},
	models.AgentStateMerging:      {models.AgentStateIdle, models.AgentStateError},
	models.AgentStateIdle:         {models.AgentStateClaiming, models.AgentStateShuttingDown},
	// error -> idle lets an agent recover after a failed task; a spawn
	// failure never recovers because the run loop for that agent never
	// starts.
	models.AgentStateError: {models.AgentStateIdle, models.AgentStateShuttingDown},
	models.AgentStateShuttingDown: {models.AgentStateStopped},
	models.AgentStateStopped:      {},
}

// EventType identifies a lifecycle notification.
type EventType string

const (
	// EventStateChanged fires on every accepted transition.
	EventStateChanged EventType = "StateChanged"
)

// Event is one fire-and-forget lifecycle notification, emitted outside any
// lock to avoid re-entrancy per the source's reference-captured-handler
// hazard.
type Event struct {
	Type      EventType
	AgentID   string
	From      models.AgentState
	To        models.AgentState
	Timestamp time.Time
}

// Manager tracks every live agent's lifecycle state and statistics. It
// hands out value copies, never references into its internal records, per
// the "encapsulate behind a value-returning API".
type Manager struct {
	mu     sync.Mutex
	agents map[string]*models.Agent
	events chan Event
}

// New returns an empty lifecycle manager.
func New() *Manager {
	return &Manager{
		agents: make(map[string]*models.Agent),
		events: make(chan Event, 128),
	}
}

// Events returns a read-only channel of lifecycle events.
func (m *Manager) Events() <-chan Event { return m.events }

func (m *Manager) emit(evt Event) {
	select {
	case m.events <- evt:
	default:
	}
}

// CreateWithID registers a new agent in the spawning state.
func (m *Manager) CreateWithID(agentID, modelRef, worktreePath, branchName string) (*models.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[agentID]; exists {
		return nil, fmt.Errorf("agentlifecycle: agent %s already exists", agentID)
	}

	a := &models.Agent{
		ID:           agentID,
		ModelRef:     modelRef,
		WorktreePath: worktreePath,
		BranchName:   branchName,
		State:        models.AgentStateSpawning,
		CreatedAt:    time.Now(),
	}
	m.agents[agentID] = a
	return a.Clone(), nil
}

// Get returns a copy of the current record for agentID, or nil if unknown.
func (m *Manager) Get(agentID string) *models.Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[agentID]
	if !ok {
		return nil
	}
	return a.Clone()
}

// All returns a copy of every tracked agent.
func (m *Manager) All() []*models.Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a.Clone())
	}
	return out
}

// Remove drops agentID from tracking (e.g. after worktree teardown).
func (m *Manager) Remove(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.agents, agentID)
}

// Transition moves agentID from its current state to to, rejecting edges
// not present in the state diagram, and emits EventStateChanged on success.
func (m *Manager) Transition(agentID string, to models.AgentState) error {
	m.mu.Lock()
	a, ok := m.agents[agentID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("agentlifecycle: unknown agent %s", agentID)
	}

	from := a.State
	if !canTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("agentlifecycle: illegal transition %s -> %s for agent %s", from, to, agentID)
	}
	a.State = to
	a.Stats.LastActivity = time.Now()
	m.mu.Unlock()

	m.emit(Event{Type: EventStateChanged, AgentID: agentID, From: from, To: to, Timestamp: time.Now()})
	return nil
}

func canTransition(from, to models.AgentState) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// SetCurrentTask records the task claimed by agentID, or clears it when
// taskID is empty.
func (m *Manager) SetCurrentTask(agentID, taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.agents[agentID]; ok {
		a.CurrentTaskID = taskID
	}
}

// RecordTaskCompleted increments the completed-tasks stat for agentID.
func (m *Manager) RecordTaskCompleted(agentID string, outputBytes int64, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.agents[agentID]; ok {
		a.Stats.TasksCompleted++
		a.Stats.OutputBytes += outputBytes
		a.Stats.ElapsedMS += elapsed.Milliseconds()
		a.Stats.LastActivity = time.Now()
	}
}

// RecordTaskFailed increments the failed-tasks stat for agentID.
func (m *Manager) RecordTaskFailed(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.agents[agentID]; ok {
		a.Stats.TasksFailed++
		a.Stats.LastActivity = time.Now()
	}
}
