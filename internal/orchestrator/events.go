package orchestrator

import "time"

// EventType identifies a notification the orchestrator surfaces to whatever
// is driving it (the CLI's progress display, primarily).
type EventType string

const (
	// EventPhaseChanged fires when the orchestrator moves between the
	// Decompose/Spawn/Coordinate/Synthesize/Merge phases.
	EventPhaseChanged EventType = "PhaseChanged"
	// EventQueueUpdate carries store statistics, emitted once per
	// coordinate loop iteration.
	EventQueueUpdate EventType = "QueueUpdate"
	// EventAgentStuck fires when an agent is suspected stuck; there is no
	// automatic kill, this is visibility only.
	EventAgentStuck EventType = "AgentStuck"
	// EventPlanEvaluated fires when the coordinate loop approves or
	// rejects a submitted plan.
	EventPlanEvaluated EventType = "PlanEvaluated"
	// EventTaskMerged fires once a task's branch lands during the Merge
	// & cleanup phase.
	EventTaskMerged EventType = "TaskMerged"
	// EventOverlapWarning surfaces a file-overlap warning detected while
	// merging (detect_file_overlap).
	EventOverlapWarning EventType = "OverlapWarning"
	// EventError reports a non-fatal error encountered during a phase.
	EventError EventType = "Error"
)

// Event is one fire-and-forget orchestrator notification.
type Event struct {
	Type      EventType
	Phase     Phase
	TaskID    string
	AgentID   string
	Message   string
	Stats     QueueStats
	Timestamp time.Time
}

// QueueStats summarizes the task store at a point in time, the payload of
// QueueUpdate.
type QueueStats struct {
	Pending    int
	InProgress int
	Completed  int
	Failed     int
}

func (o *Orchestrator) emit(evt Event) {
	evt.Timestamp = time.Now()
	select {
	case o.events <- evt:
	default:
	}
}

// Events returns a read-only channel of orchestrator notifications.
func (o *Orchestrator) Events() <-chan Event { return o.events }
