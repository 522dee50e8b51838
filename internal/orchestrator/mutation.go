package orchestrator

import (
	"fmt"
	"time"

	"github.com/ralphctl/ralph/pkg/models"
)

// AddTask merges a new task into the store at any point during
// coordination ("Dynamic mutation during coordination").
func (o *Orchestrator) AddTask(t *models.Task) error {
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	if err := o.store.AddTasks([]*models.Task{t}); err != nil {
		return fmt.Errorf("orchestrator: add_task: %w", err)
	}
	o.emit(Event{Type: EventQueueUpdate, TaskID: t.ID, Stats: statsFor(o.store.GetAll())})
	return nil
}

// ReassignTask moves taskID's claim to newAgentID, or releases it back to
// pending if newAgentID is empty ("reassign_task(task_id,
// new_agent)").
func (o *Orchestrator) ReassignTask(taskID, newAgentID string) error {
	if err := o.store.Reassign(taskID, newAgentID); err != nil {
		return fmt.Errorf("orchestrator: reassign_task: %w", err)
	}
	o.emit(Event{Type: EventQueueUpdate, TaskID: taskID, AgentID: newAgentID})
	return nil
}

// CancelTask forces taskID to failed regardless of retries remaining
// ("cancel_task(task_id)").
func (o *Orchestrator) CancelTask(taskID string) error {
	if err := o.store.Cancel(taskID, "cancelled by operator"); err != nil {
		return fmt.Errorf("orchestrator: cancel_task: %w", err)
	}
	o.emit(Event{Type: EventQueueUpdate, TaskID: taskID})
	return nil
}

// RequestShutdown asks agentID to wind down gracefully once its current
// task (if any) completes.
func (o *Orchestrator) RequestShutdown(agentID string) error {
	o.mu.Lock()
	h, ok := o.agents[agentID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("orchestrator: request_shutdown: unknown agent %s", agentID)
	}
	select {
	case <-h.shutdownReq:
		// already requested
	default:
		close(h.shutdownReq)
	}
	o.emit(Event{Type: EventQueueUpdate, AgentID: agentID, Message: "shutdown requested"})
	return nil
}

// RequestShutdownAll asks every spawned agent to wind down gracefully.
// Callers that need a hard stop cancel the run context after the
// configured shutdown grace period elapses.
func (o *Orchestrator) RequestShutdownAll() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.agents))
	for id := range o.agents {
		ids = append(ids, id)
	}
	o.mu.Unlock()
	for _, id := range ids {
		_ = o.RequestShutdown(id)
	}
}

// ShutdownGrace returns how long a graceful shutdown waits before the
// caller should force-cancel the run context.
func (o *Orchestrator) ShutdownGrace() time.Duration { return o.cfg.ShutdownGrace }
