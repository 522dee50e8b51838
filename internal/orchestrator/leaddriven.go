package orchestrator

import (
	"context"
	"fmt"

	"github.com/ralphctl/ralph/internal/aiprocess"
	"github.com/ralphctl/ralph/internal/decompose"
)

const leadDecisionPromptTemplate = `Task %q failed with error:
%s

Decide what should happen next. Respond with a ---LEAD_DECISION--- block as
specified: retry_task, skip_task, or declare_complete.
`

// leadDispositioner asks the lead AI to disposition one failed task
// ("Lead-driven alternative"). It falls back permanently to pure
// sequential fast-path once consecutive unparseable responses reach the
// configured maximum.
type leadDispositioner struct {
	provider               aiprocess.Provider
	dir                    string
	maxUnparseable         int
	consecutiveUnparseable int
	fastPathOnly           bool
	decided                map[string]bool
}

func newLeadDispositioner(provider aiprocess.Provider, dir string, maxUnparseable int) *leadDispositioner {
	return &leadDispositioner{
		provider:       provider,
		dir:            dir,
		maxUnparseable: maxUnparseable,
		decided:        make(map[string]bool),
	}
}

// Decided reports whether taskID has already been dispositioned.
func (d *leadDispositioner) Decided(taskID string) bool { return d.decided[taskID] }

// Disposition consults the lead AI for taskID's failure, unless the
// dispositioner has already fallen back to fast-path, in which case it
// returns a retry decision without invoking the AI.
func (d *leadDispositioner) Disposition(ctx context.Context, taskID, errMsg string) (*decompose.Decision, error) {
	if d.fastPathOnly {
		d.decided[taskID] = true
		return &decompose.Decision{Action: decompose.ActionRetryTask, TaskID: taskID, Reason: "fast-path fallback"}, nil
	}

	prompt := fmt.Sprintf(leadDecisionPromptTemplate, taskID, errMsg)
	res, err := aiprocess.Run(ctx, d.provider, prompt, d.dir, nil)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: lead disposition: %w", err)
	}
	d.decided[taskID] = true

	text := res.ParsedText
	if text == "" {
		text = res.Output
	}

	decision, parseErr := decompose.ParseLeadDecision(text)
	if parseErr != nil {
		d.consecutiveUnparseable++
		if d.consecutiveUnparseable >= d.maxUnparseable {
			d.fastPathOnly = true
		}
		return &decompose.Decision{Action: decompose.ActionRetryTask, TaskID: taskID, Reason: "unparseable lead response"}, nil
	}

	d.consecutiveUnparseable = 0
	return decision, nil
}

// FastPathOnly reports whether the dispositioner has permanently fallen
// back to pure sequential fast-path.
func (d *leadDispositioner) FastPathOnly() bool { return d.fastPathOnly }
