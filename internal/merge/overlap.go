package merge

import (
	"path/filepath"

	"github.com/ralphctl/ralph/pkg/models"
)

// OverlapSeverity ranks how concerning a file overlap between tasks is
// (detect_file_overlap).
type OverlapSeverity string

const (
	SeverityCritical OverlapSeverity = "critical" // >= 3 independent tasks touch the file
	SeverityHigh     OverlapSeverity = "high"      // 2 independent tasks touch the file
	SeverityMedium   OverlapSeverity = "medium"    // related by a dependency chain
	SeverityLow      OverlapSeverity = "low"
)

// FileConflictWarning names one file touched by more than one task.
type FileConflictWarning struct {
	File     string
	TaskIDs  []string
	Severity OverlapSeverity
}

// DetectFileOverlap emits a warning for every file named in two or more
// tasks' Files lists. "Independent" means no dependency path connects the
// pair in either direction.
func DetectFileOverlap(tasks []*models.Task) []FileConflictWarning {
	byFile := make(map[string][]*models.Task)
	for _, t := range tasks {
		seen := make(map[string]bool)
		for _, f := range t.Files {
			norm := filepath.Clean(f)
			if seen[norm] {
				continue
			}
			seen[norm] = true
			byFile[norm] = append(byFile[norm], t)
		}
	}

	reachable := buildReachability(tasks)

	var warnings []FileConflictWarning
	for file, owners := range byFile {
		if len(owners) < 2 {
			continue
		}
		independent := 0
		related := false
		for i := 0; i < len(owners); i++ {
			isIndependentFromAll := true
			for j := 0; j < len(owners); j++ {
				if i == j {
					continue
				}
				if reachable[owners[i].ID][owners[j].ID] || reachable[owners[j].ID][owners[i].ID] {
					isIndependentFromAll = false
					related = true
				}
			}
			if isIndependentFromAll {
				independent++
			}
		}

		ids := make([]string, len(owners))
		for i, o := range owners {
			ids[i] = o.ID
		}

		var sev OverlapSeverity
		switch {
		case independent >= 3:
			sev = SeverityCritical
		case independent == 2:
			sev = SeverityHigh
		case related:
			sev = SeverityMedium
		default:
			sev = SeverityLow
		}
		warnings = append(warnings, FileConflictWarning{File: file, TaskIDs: ids, Severity: sev})
	}
	return warnings
}

// buildReachability returns, for every task ID, the set of task IDs
// reachable by following DependsOn edges (ancestor relationship).
func buildReachability(tasks []*models.Task) map[string]map[string]bool {
	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	reachable := make(map[string]map[string]bool, len(tasks))
	var visit func(id string) map[string]bool
	visiting := make(map[string]bool)
	visit = func(id string) map[string]bool {
		if r, ok := reachable[id]; ok {
			return r
		}
		r := make(map[string]bool)
		reachable[id] = r
		if visiting[id] {
			return r // cycle guard
		}
		visiting[id] = true
		t, ok := byID[id]
		if ok {
			for _, dep := range t.DependsOn {
				r[dep] = true
				for anc := range visit(dep) {
					r[anc] = true
				}
			}
		}
		visiting[id] = false
		return r
	}

	for _, t := range tasks {
		visit(t.ID)
	}
	return reachable
}
