package decompose

import (
	"fmt"
	"strings"
)

// DecisionAction is one of the three dispositions the lead AI may choose for
// a failed task in lead-driven mode.
type DecisionAction string

const (
	ActionRetryTask       DecisionAction = "retry_task"
	ActionSkipTask        DecisionAction = "skip_task"
	ActionDeclareComplete DecisionAction = "declare_complete"
)

const (
	leadDecisionStart = "---LEAD_DECISION---"
	leadDecisionEnd   = "---END_DECISION---"
)

// Decision is a parsed `---LEAD_DECISION---` block.
type Decision struct {
	Action DecisionAction
	TaskID string
	Reason string
}

// FormatLeadDecision renders d as a ---LEAD_DECISION--- block, the inverse
// of ParseLeadDecision. Used to show the lead AI the exact shape it is
// expected to emit.
func FormatLeadDecision(d *Decision) string {
	var b strings.Builder
	b.WriteString(leadDecisionStart)
	b.WriteString("\n")
	fmt.Fprintf(&b, "ACTION: %s\n", d.Action)
	if d.TaskID != "" {
		fmt.Fprintf(&b, "TASK_ID: %s\n", d.TaskID)
	}
	if d.Reason != "" {
		fmt.Fprintf(&b, "REASON: %s\n", d.Reason)
	}
	b.WriteString(leadDecisionEnd)
	b.WriteString("\n")
	return b.String()
}

// ParseLeadDecision parses the lead AI's failed-task disposition.
func ParseLeadDecision(response string) (*Decision, error) {
	block, err := extractBlock(response, leadDecisionStart, leadDecisionEnd)
	if err != nil {
		return nil, err
	}

	d := &Decision{}
	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(line)
		if v, ok := fieldValue(trimmed, "ACTION:"); ok {
			d.Action = DecisionAction(strings.ToLower(strings.TrimSpace(v)))
		} else if v, ok := fieldValue(trimmed, "TASK_ID:"); ok {
			d.TaskID = v
		} else if v, ok := fieldValue(trimmed, "REASON:"); ok {
			d.Reason = v
		}
	}

	switch d.Action {
	case ActionRetryTask, ActionSkipTask, ActionDeclareComplete:
	default:
		return nil, fmt.Errorf("decompose: unknown lead decision action %q", d.Action)
	}
	if d.Action != ActionDeclareComplete && d.TaskID == "" {
		return nil, fmt.Errorf("decompose: lead decision %q missing TASK_ID", d.Action)
	}
	return d, nil
}
