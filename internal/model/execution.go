package model

import "time"

// ExecutionOptions contains options for a single command execution.
type ExecutionOptions struct {
	// WorkingDir is the directory to run the command in (optional, defaults to
	// the process working directory).
	WorkingDir string
	// Env contains additional environment variables for this execution. They are
	// merged over the inherited environment, not replacing it.
	Env map[string]string
	// Timeout is the maximum wall-clock time the command may run. Zero means no
	// timeout.
	Timeout time.Duration
	// Shell overrides the engine's shell for this execution (optional).
	Shell string
}

// ExecutionResult is the terminal outcome of a single command execution.
// It is immutable once constructed.
type ExecutionResult struct {
	// Command is the original command string, kept for traceability.
	Command string
	// Success is true iff the process exited with code 0.
	Success bool
	// ExitCode is the process exit code. -1 is the sentinel for a process that
	// never exited on its own (spawn failure, timeout or cancellation).
	ExitCode int
	// Stdout contains the complete buffered standard output.
	Stdout string
	// Stderr contains the complete buffered standard error.
	Stderr string
	// Duration is the wall-clock time from spawn request to observed exit.
	Duration time.Duration
}

// DurationMs returns the execution duration in milliseconds.
func (r ExecutionResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// Progress is a free-form progress hint supplied by upstream layers (e.g. a
// build tool driving the engine). The engine never computes progress itself,
// it only relays it.
type Progress struct {
	Message    string
	Current    int
	Total      int
	Percentage float64
}
