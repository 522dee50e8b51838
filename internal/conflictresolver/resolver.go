// Package conflictresolver implements the AI-driven merge-conflict
// resolution pass: a one-shot subprocess invocation, in the
// conflicted working directory, with full file-edit capability and a
// bounded time budget. Success requires both a zero exit status and the
// absence of any leftover conflict marker in a previously-conflicted file.
package conflictresolver

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ralphctl/ralph/internal/aiprocess"
)

// DefaultTimeout is the bounded time budget for one resolution attempt
// ("default 15 min").
const DefaultTimeout = 15 * time.Minute

// conflictMarkers are the literal git markers a resolved file must no
// longer contain.
var conflictMarkers = []string{"<<<<<<<", "=======", ">>>>>>>"}

// Resolver runs the conflict-resolution subprocess. It satisfies the
// merge.Resolver interface without importing the merge package, keeping
// the dependency direction merge -> conflictresolver, not the reverse.
type Resolver struct {
	provider aiprocess.Provider
	timeout  time.Duration
	onOutput func(line string)
}

// New returns a resolver that invokes provider for each conflict.
func New(provider aiprocess.Provider) *Resolver {
	return &Resolver{provider: provider, timeout: DefaultTimeout}
}

// SetTimeout overrides DefaultTimeout.
func (r *Resolver) SetTimeout(d time.Duration) { r.timeout = d }

// SetOnOutput registers a callback invoked once per subprocess output
// line, for progress reporting.
func (r *Resolver) SetOnOutput(fn func(line string)) { r.onOutput = fn }

// Resolve runs the conflict-resolution subprocess in workDir with a prompt
// listing conflicts, the merge error, and the task's description for
// intent. It returns an error if the subprocess times out, exits non-zero,
// or any previously-conflicted file still contains a conflict marker.
func (r *Resolver) Resolve(ctx context.Context, workDir string, conflicts []string, taskDescription, mergeError string) error {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := buildPrompt(conflicts, taskDescription, mergeError)

	res, err := aiprocess.Run(runCtx, r.provider, prompt, workDir, r.onOutput)
	if err != nil {
		return fmt.Errorf("conflictresolver: run: %w", err)
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("conflictresolver: timed out after %s", r.timeout)
	}
	if !res.Success {
		return fmt.Errorf("conflictresolver: subprocess failed: %s", res.Error)
	}

	for _, path := range conflicts {
		hasMarkers, err := fileHasConflictMarkers(workDir, path)
		if err != nil {
			return fmt.Errorf("conflictresolver: check %s: %w", path, err)
		}
		if hasMarkers {
			return fmt.Errorf("conflictresolver: conflict markers remain in %s", path)
		}
	}
	return nil
}

func buildPrompt(conflicts []string, taskDescription, mergeError string) string {
	var b strings.Builder
	b.WriteString("Resolve the following git merge conflict.\n\n")
	b.WriteString("Task intent:\n")
	b.WriteString(taskDescription)
	b.WriteString("\n\nMerge error:\n")
	b.WriteString(mergeError)
	b.WriteString("\n\nConflicted files:\n")
	for _, c := range conflicts {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	b.WriteString("\nEdit each file to resolve the conflict, remove all conflict markers, " +
		"stage and commit the result.\n")
	return b.String()
}

func fileHasConflictMarkers(workDir, relPath string) (bool, error) {
	f, err := os.Open(joinPath(workDir, relPath))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		for _, marker := range conflictMarkers {
			if strings.HasPrefix(line, marker) {
				return true, nil
			}
		}
	}
	return false, scanner.Err()
}

func joinPath(dir, rel string) string {
	if dir == "" {
		return rel
	}
	return dir + "/" + rel
}
