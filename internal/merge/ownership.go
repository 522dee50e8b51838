package merge

import (
	"path/filepath"
	"sync"
)

// Ownership is the runtime map from normalized repository path to the
// agent ID that most recently claimed or modified it, used to surface
// overlap warnings as merges land.
type Ownership struct {
	mu    sync.Mutex
	owner map[string]string
}

// NewOwnership returns an empty ownership tracker.
func NewOwnership() *Ownership {
	return &Ownership{owner: make(map[string]string)}
}

// Register records agentID as the owner of each path, returning a warning
// for every path that already had a different owner.
func (o *Ownership) Register(agentID string, paths []string) []FileConflictWarning {
	o.mu.Lock()
	defer o.mu.Unlock()

	var warnings []FileConflictWarning
	for _, p := range paths {
		norm := filepath.Clean(p)
		if prev, ok := o.owner[norm]; ok && prev != agentID {
			warnings = append(warnings, FileConflictWarning{
				File:     norm,
				TaskIDs:  []string{prev, agentID},
				Severity: SeverityLow,
			})
		}
		o.owner[norm] = agentID
	}
	return warnings
}

// Owner returns the agent ID that currently owns path, or "" if unowned.
func (o *Ownership) Owner(path string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.owner[filepath.Clean(path)]
}
