// Package decompose implements the Lead Orchestrator's Decompose phase:
// turning a user request into a dependency-ordered task
// list, either by asking the lead AI to emit a `---TEAM_TASKS---` protocol
// block, or by parsing an existing Markdown plan document's checklist.
package decompose

import (
	"context"
	"fmt"
	"os"

	"github.com/ralphctl/ralph/internal/aiprocess"
	"github.com/ralphctl/ralph/pkg/models"
)

const decompositionPromptTemplate = `Break the following request down into parallelizable subtasks for a team
of coding agents. Respond with a ---TEAM_TASKS--- block as specified.

Request:
%s
`

// Decomposer requests a task breakdown from the lead AI.
type Decomposer struct {
	provider aiprocess.Provider
	onOutput func(line string)
}

// New returns a Decomposer that invokes provider to produce decompositions.
func New(provider aiprocess.Provider) *Decomposer {
	return &Decomposer{provider: provider}
}

// SetOnOutput registers a progress callback for the underlying subprocess.
func (d *Decomposer) SetOnOutput(fn func(line string)) { d.onOutput = fn }

// Decompose asks the lead AI to break request into tasks, parses the
// resulting ---TEAM_TASKS--- block, and checks the dependency graph for a
// cycle. A cycle is reported on stderr; the tasks are still returned.
func (d *Decomposer) Decompose(ctx context.Context, request, dir string) ([]*models.Task, error) {
	prompt := fmt.Sprintf(decompositionPromptTemplate, request)

	res, err := aiprocess.Run(ctx, d.provider, prompt, dir, d.onOutput)
	if err != nil {
		return nil, fmt.Errorf("decompose: run: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("decompose: subprocess failed: %s", res.Error)
	}

	text := res.ParsedText
	if text == "" {
		text = res.Output
	}

	tasks, unresolved, err := ParseTeamTasks(text)
	if err != nil {
		return nil, fmt.Errorf("decompose: parse response: %w", err)
	}
	for _, u := range unresolved {
		fmt.Fprintf(os.Stderr, "decompose: dropped unresolved dependency: %s\n", u)
	}

	// A cycle in the AI-produced graph is best-effort, not fatal: the merge
	// manager's topological order appends cycle members at the end, so the
	// tasks still run and merge. Just surface the warning.
	if cycle := DetectCycle(tasks); cycle != nil {
		fmt.Fprintf(os.Stderr, "decompose: circular dependency detected: %v; proceeding, cycle members merge last\n", cycle)
	}
	return tasks, nil
}

// DecomposeFromPlanDoc parses an existing Markdown plan document instead of
// invoking the lead AI: used when the operator already
// has a checklist-style plan on disk.
func DecomposeFromPlanDoc(source []byte) ([]*models.Task, error) {
	tasks, err := ParsePlanDoc(source)
	if err != nil {
		return nil, fmt.Errorf("decompose: parse plan doc: %w", err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("decompose: no checklist items found in plan doc")
	}
	return tasks, nil
}

// DetectCycle returns the first cycle found in tasks' DependsOn graph as
// the IDs along the cycle (last element repeats the first), or nil if the
// graph is a DAG. Cycles are never fatal: callers log them and rely on the
// merge manager's topological order to append cycle members last.
func DetectCycle(tasks []*models.Task) []string {
	idToTask := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		idToTask[t.ID] = t
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(tasks))

	var visit func(id string, path []string) []string
	visit = func(id string, path []string) []string {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			cycleStart := 0
			for i, p := range path {
				if p == id {
					cycleStart = i
					break
				}
			}
			return append(append([]string(nil), path[cycleStart:]...), id)
		}

		state[id] = visiting
		if t := idToTask[id]; t != nil {
			for _, dep := range t.DependsOn {
				if cycle := visit(dep, append(path, id)); cycle != nil {
					return cycle
				}
			}
		}
		state[id] = visited
		return nil
	}

	for _, t := range tasks {
		if state[t.ID] == unvisited {
			if cycle := visit(t.ID, nil); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
