// Package aiprocess implements the AI subprocess contract: given
// a provider configuration, run an external AI CLI as a subprocess with a
// prompt delivered per that provider's flags, stream its stdout line by
// line, and report a structured result. The core never interprets the
// subprocess's internal behavior — only its exit status and output text.
package aiprocess

import "time"

// Provider describes how to invoke one AI CLI: its executable, fixed
// arguments, and how the prompt is delivered. The core treats every field
// here as opaque configuration; it never inspects what the executable does.
type Provider struct {
	// Executable is the binary to run (e.g. "claude").
	Executable string
	// Arguments are flags passed before the prompt is appended.
	Arguments []string
	// UsesStdin delivers the prompt on the subprocess's stdin instead of
	// as a trailing argument.
	UsesStdin bool
	// UsesPromptArgument appends the prompt as a trailing CLI argument
	// (e.g. "-p <prompt>"). Mutually exclusive with UsesStdin in practice,
	// but the contract does not forbid both.
	UsesPromptArgument bool
	// PromptFlag is the flag that precedes the prompt argument, when
	// UsesPromptArgument is set (e.g. "-p" or "--print").
	PromptFlag string
	// UsesStreamJSON indicates stdout emits newline-delimited JSON events
	// instead of plain text; Run extracts text deltas from each event.
	UsesStreamJSON bool
	// Model is an opaque model reference passed through to the CLI via
	// ModelFlag, if both are set. The core never interprets its value.
	Model     string
	ModelFlag string
}

// Result is the outcome of one subprocess invocation.
type Result struct {
	Success     bool
	Output      string // raw combined stdout text
	ParsedText  string // text extracted from stream-json deltas, if any
	Error       string
	Duration    time.Duration
	OutputChars int
}
