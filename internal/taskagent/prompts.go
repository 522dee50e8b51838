package taskagent

import (
	"fmt"
	"strings"

	"github.com/ralphctl/ralph/pkg/models"
)

// The core's correctness never depends on the phrasing of these prompts,
// only on the structured protocols they ask the AI to emit back
// ("text-template prompts for sub-AIs"); they are kept here as opaque
// constants.

const planPromptTemplate = `You are planning the following task. Produce a plan document describing
your intended approach. Do not edit any files yet.

Title: %s
Description:
%s
`

const codePromptTemplate = `Implement the following task in this working directory. Commit your
changes when done.

Title: %s
Description:
%s

Approved plan:
%s
`

func planPrompt(t *models.Task) string {
	return fmt.Sprintf(planPromptTemplate, t.Title, t.Description)
}

func codePrompt(t *models.Task, plan string) string {
	return fmt.Sprintf(codePromptTemplate, t.Title, t.Description, plan)
}

func planRevisionPrompt(t *models.Task, previousPlan, feedback string) string {
	var b strings.Builder
	b.WriteString(planPrompt(t))
	b.WriteString("\n\nYour previous plan was rejected:\n")
	b.WriteString(previousPlan)
	b.WriteString("\n\nFeedback:\n")
	b.WriteString(feedback)
	b.WriteString("\nRevise the plan accordingly.\n")
	return b.String()
}
