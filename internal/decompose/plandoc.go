package decompose

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ralphctl/ralph/pkg/models"
)

// planDocMarkdown is shared across calls; goldmark's parser is safe for
// concurrent use once constructed.
var planDocMarkdown = goldmark.New(goldmark.WithExtensions(extension.TaskList))

// ParsePlanDoc extracts tasks from a Markdown plan document: every GFM task
// list item (`- [ ]` / `- [x]`) becomes a task, grouped by the nearest
// preceding `##` heading, whose text becomes the task's Category.
// Already-checked items are skipped — they describe work already
// done, not work to schedule.
func ParsePlanDoc(source []byte) ([]*models.Task, error) {
	doc := planDocMarkdown.Parser().Parse(text.NewReader(source))

	var tasks []*models.Task
	var category string
	lineOf := newLineIndex(source)

	err := gast.Walk(doc, func(n gast.Node, entering bool) (gast.WalkStatus, error) {
		if !entering {
			return gast.WalkContinue, nil
		}

		if heading, ok := n.(*gast.Heading); ok && heading.Level == 2 {
			category = extractNodeText(heading, source)
			return gast.WalkContinue, nil
		}

		item, ok := n.(*gast.ListItem)
		if !ok {
			return gast.WalkContinue, nil
		}
		checkbox := findTaskCheckBox(item)
		if checkbox == nil || checkbox.IsChecked {
			return gast.WalkContinue, nil
		}

		title := strings.TrimSpace(extractNodeText(item, source))
		if title == "" {
			return gast.WalkContinue, nil
		}

		var sourceLine string
		if lines := item.Lines(); lines.Len() > 0 {
			seg := lines.At(0)
			sourceLine = strconv.Itoa(lineOf(seg.Start))
		}

		tasks = append(tasks, &models.Task{
			Title:      title,
			Category:   category,
			Status:     models.TaskStatusPending,
			Priority:   models.PriorityNormal,
			SourceLine: sourceLine,
		})
		return gast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	for i, t := range tasks {
		t.ID = fmt.Sprintf("task-%d", i+1)
	}
	return tasks, nil
}

// findTaskCheckBox returns the TaskCheckBox node attached to a list item, if
// any (goldmark attaches it as the first child of the item's paragraph).
func findTaskCheckBox(item *gast.ListItem) *east.TaskCheckBox {
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		for gc := c.FirstChild(); gc != nil; gc = gc.NextSibling() {
			if box, ok := gc.(*east.TaskCheckBox); ok {
				return box
			}
		}
	}
	return nil
}

// extractNodeText concatenates the text segments under n, skipping the
// checkbox marker itself.
func extractNodeText(n gast.Node, source []byte) string {
	var buf bytes.Buffer
	var walk func(gast.Node)
	walk = func(node gast.Node) {
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if txt, ok := c.(*gast.Text); ok {
				buf.Write(txt.Segment.Value(source))
				if txt.SoftLineBreak() || txt.HardLineBreak() {
					buf.WriteByte(' ')
				}
			}
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}

// newLineIndex returns a function mapping a byte offset into source to a
// 1-based line number.
func newLineIndex(source []byte) func(offset int) int {
	starts := []int{0}
	for i, b := range source {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return func(offset int) int {
		lo, hi := 0, len(starts)-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if starts[mid] <= offset {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		return lo + 1
	}
}
