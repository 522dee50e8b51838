package merge

import (
	"sort"

	"github.com/ralphctl/ralph/pkg/models"
)

// TopoOrder returns completed in dependency order using Kahn's algorithm
// over the sub-DAG restricted to completed tasks ("Topological
// order"). Dependencies on tasks outside the completed set are treated as
// already satisfied, since the merge manager only orders what it will
// actually merge. Tasks that form a cycle (should not occur) are appended
// in arbitrary (ID) order at the end, best-effort.
func TopoOrder(completed []*models.Task) []*models.Task {
	byID := make(map[string]*models.Task, len(completed))
	for _, t := range completed {
		byID[t.ID] = t
	}

	inDegree := make(map[string]int, len(completed))
	dependents := make(map[string][]string, len(completed))
	for _, t := range completed {
		deg := 0
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; ok {
				deg++
				dependents[dep] = append(dependents[dep], t.ID)
			}
		}
		inDegree[t.ID] = deg
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []*models.Task
	visited := make(map[string]bool, len(completed))

	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		order = append(order, byID[id])

		var next []string
		for _, child := range dependents[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				next = append(next, child)
			}
		}
		sort.Strings(next)
		ready = append(ready, next...)
	}

	if len(order) < len(completed) {
		var remnant []*models.Task
		for _, t := range completed {
			if !visited[t.ID] {
				remnant = append(remnant, t)
			}
		}
		sort.Slice(remnant, func(i, j int) bool { return remnant[i].ID < remnant[j].ID })
		order = append(order, remnant...)
	}

	return order
}
