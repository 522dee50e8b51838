package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is claimed and being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task exhausted its retries.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Priority orders claimable tasks; lower values are claimed first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// rank orders priorities for claim selection: lower rank claims first.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Less reports whether p should be claimed before other. Ties are broken
// by the caller on CreatedAt.
func (p Priority) Less(other Priority) bool {
	return p.rank() < other.rank()
}

// MergeStatus is the per-task lifecycle of landing a task's branch onto the
// target branch.
type MergeStatus string

const (
	MergeStatusPending          MergeStatus = "pending"
	MergeStatusQueued           MergeStatus = "queued"
	MergeStatusMerging          MergeStatus = "merging"
	MergeStatusConflictDetected MergeStatus = "conflict_detected"
	MergeStatusMerged           MergeStatus = "merged"
	MergeStatusFailed           MergeStatus = "failed"
)

// TaskResult is the outcome a task agent records on completion.
type TaskResult struct {
	Success       bool      `json:"success"`
	Summary       string    `json:"summary"`
	FilesModified []string  `json:"filesModified,omitempty"`
	Output        string    `json:"output,omitempty"`
	DurationMS    int64     `json:"durationMs"`
	CompletedAt   time.Time `json:"completedAt"`
}

// Task is a unit of work tracked by the task store.
type Task struct {
	ID          string   `json:"taskId"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	SourceLine  string   `json:"sourceLine,omitempty"`
	Priority    Priority `json:"priority"`
	Category    string   `json:"category,omitempty"`

	Status    TaskStatus `json:"status"`
	DependsOn []string   `json:"dependsOn,omitempty"`
	Files     []string   `json:"files,omitempty"`

	ClaimedByAgentID string     `json:"claimedByAgentId,omitempty"`
	ClaimedAt        *time.Time `json:"claimedAt,omitempty"`

	Result *TaskResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`

	RetryCount int `json:"retryCount"`
	MaxRetries int `json:"maxRetries"`

	MergeStatus MergeStatus `json:"mergeStatus"`

	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Claimable reports whether t can be claimed given the full task set: t
// must be pending and every dependency must resolve to an existing,
// completed task.
func (t *Task) Claimable(byID map[string]*Task) bool {
	if t.Status != TaskStatusPending {
		return false
	}
	for _, dep := range t.DependsOn {
		d, ok := byID[dep]
		if !ok || d.Status != TaskStatusCompleted {
			return false
		}
	}
	return true
}

// Clone returns a copy of t safe to hand to callers outside the store's
// lock: slices and the result pointer are copied, not shared.
func (t *Task) Clone() *Task {
	c := *t
	c.DependsOn = append([]string(nil), t.DependsOn...)
	c.Files = append([]string(nil), t.Files...)
	if t.ClaimedAt != nil {
		claimedAt := *t.ClaimedAt
		c.ClaimedAt = &claimedAt
	}
	if t.CompletedAt != nil {
		completedAt := *t.CompletedAt
		c.CompletedAt = &completedAt
	}
	if t.Result != nil {
		result := *t.Result
		result.FilesModified = append([]string(nil), t.Result.FilesModified...)
		c.Result = &result
	}
	return &c
}
