package decompose

import (
	"fmt"
	"strings"

	"github.com/ralphctl/ralph/pkg/models"
)

const (
	teamTasksStart = "---TEAM_TASKS---"
	teamTasksEnd   = "---END_TASKS---"
)

type rawTask struct {
	title       string
	description string
	priority    string
	dependsOn   []string
	files       []string
}

// ParseTeamTasks parses the lead AI's `---TEAM_TASKS---` block into
// tasks with stable sequential IDs and dependencies resolved from the
// declared titles. A dependency that resolves to no task is logged via
// unresolved and dropped, not treated as a parse error.
func ParseTeamTasks(response string) (tasks []*models.Task, unresolved []string, err error) {
	block, err := extractBlock(response, teamTasksStart, teamTasksEnd)
	if err != nil {
		return nil, nil, err
	}

	raws := parseRawTasks(block)
	if len(raws) == 0 {
		return nil, nil, fmt.Errorf("decompose: no tasks found in %s block", teamTasksStart)
	}

	titleToID := make(map[string]string, len(raws))
	tasks = make([]*models.Task, len(raws))
	for i, r := range raws {
		id := fmt.Sprintf("task-%d", i+1)
		titleToID[r.title] = id
		tasks[i] = &models.Task{
			ID:          id,
			Title:       r.title,
			Description: r.description,
			Priority:    normalizePriority(r.priority),
			Files:       r.files,
			Status:      models.TaskStatusPending,
		}
	}

	for i, r := range raws {
		for _, depTitle := range r.dependsOn {
			depID, ok := resolveTitle(depTitle, titleToID)
			if !ok {
				unresolved = append(unresolved, fmt.Sprintf("%s -> %s", r.title, depTitle))
				continue
			}
			tasks[i].DependsOn = append(tasks[i].DependsOn, depID)
		}
	}

	return tasks, unresolved, nil
}

// resolveTitle looks up depTitle in titleToID, first by exact match, then by
// case-insensitive substring match against every known title.
func resolveTitle(depTitle string, titleToID map[string]string) (string, bool) {
	if id, ok := titleToID[depTitle]; ok {
		return id, true
	}
	needle := strings.ToLower(strings.TrimSpace(depTitle))
	if needle == "" {
		return "", false
	}
	for title, id := range titleToID {
		if strings.Contains(strings.ToLower(title), needle) || strings.Contains(needle, strings.ToLower(title)) {
			return id, true
		}
	}
	return "", false
}

func normalizePriority(s string) models.Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return models.PriorityCritical
	case "high":
		return models.PriorityHigh
	case "low":
		return models.PriorityLow
	default:
		return models.PriorityNormal
	}
}

// parseRawTasks walks the lines of a TEAM_TASKS block. Each task begins with
// a `- TASK:` line; subsequent indented `KEY: value` lines belong to it
// until the next `- TASK:` or end of block.
func parseRawTasks(block string) []rawTask {
	var tasks []rawTask
	var current *rawTask

	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if title, ok := fieldValue(trimmed, "- TASK:"); ok {
			if current != nil {
				tasks = append(tasks, *current)
			}
			current = &rawTask{title: title}
			continue
		}
		if current == nil {
			continue
		}

		if v, ok := fieldValue(trimmed, "DESCRIPTION:"); ok {
			current.description = v
		} else if v, ok := fieldValue(trimmed, "PRIORITY:"); ok {
			current.priority = v
		} else if v, ok := fieldValue(trimmed, "DEPENDS_ON:"); ok {
			current.dependsOn = splitCSVTitles(v)
		} else if v, ok := fieldValue(trimmed, "FILES:"); ok {
			current.files = splitCSVTitles(v)
		}
	}
	if current != nil {
		tasks = append(tasks, *current)
	}
	return tasks
}

func fieldValue(line, prefix string) (string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
}

func splitCSVTitles(s string) []string {
	if strings.EqualFold(strings.TrimSpace(s), "none") || strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func extractBlock(response, start, end string) (string, error) {
	startIdx := strings.Index(response, start)
	if startIdx == -1 {
		return "", fmt.Errorf("decompose: %s marker not found", start)
	}
	body := response[startIdx+len(start):]
	endIdx := strings.Index(body, end)
	if endIdx == -1 {
		return "", fmt.Errorf("decompose: %s marker not found", end)
	}
	return body[:endIdx], nil
}
