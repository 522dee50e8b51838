package aiprocess

import (
	"context"
	"strings"
	"testing"
)

func TestRunPlainText(t *testing.T) {
	p := Provider{
		Executable:         "sh",
		Arguments:          []string{"-c", "echo hello; echo world >&2"},
		UsesPromptArgument: false,
	}
	var lines []string
	res, err := Run(context.Background(), p, "", "", func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Fatalf("expected output to contain hello, got %q", res.Output)
	}
	if len(lines) != 1 || lines[0] != "hello" {
		t.Fatalf("expected one onOutput line 'hello', got %v", lines)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	p := Provider{Executable: "sh", Arguments: []string{"-c", "exit 3"}}
	res, err := Run(context.Background(), p, "", "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure for nonzero exit")
	}
}

func TestRunStreamJSON(t *testing.T) {
	script := `echo '{"type":"assistant","message":"hi "}'; echo '{"type":"result","result":"done"}'`
	p := Provider{
		Executable:     "sh",
		Arguments:      []string{"-c", script},
		UsesStreamJSON: true,
	}
	res, err := Run(context.Background(), p, "", "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ParsedText != "hi done" {
		t.Fatalf("expected parsed text 'hi done', got %q", res.ParsedText)
	}
}

func TestRunUsesPromptArgument(t *testing.T) {
	p := Provider{
		Executable:         "sh",
		Arguments:          []string{"-c", `echo "$1"`},
		UsesPromptArgument: true,
		PromptFlag:         "",
	}
	res, err := Run(context.Background(), p, "the-prompt", "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(res.Output, "the-prompt") {
		t.Fatalf("expected prompt to be passed through, got %q", res.Output)
	}
}
