package lib

import (
	"errors"
	"time"

	"github.com/runforge/runforge/internal/eventbus"
	"github.com/runforge/runforge/internal/model"
)

var (
	// ErrNotFound is returned when a resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned on invalid input or operations.
	ErrNotValid = errors.New("not valid")
)

// ExecuteOpts configures a single command execution.
//
// Pass nil to use defaults (process working directory, inherited environment,
// no timeout).
type ExecuteOpts struct {
	// WorkingDir sets the working directory for the command.
	WorkingDir string
	// Env contains additional environment variables for this execution only.
	// They are merged over the inherited environment.
	Env map[string]string
	// Timeout is the maximum wall-clock time the command may run. Zero means
	// no timeout.
	Timeout time.Duration
}

// Result is the terminal outcome of a command execution.
type Result struct {
	// Command is the original command string.
	Command string
	// Success is true iff the process exited with code 0.
	Success bool
	// ExitCode is the process exit code. -1 means the process never exited on
	// its own (spawn failure, timeout or cancellation).
	ExitCode int
	// Stdout contains the complete buffered standard output.
	Stdout string
	// Stderr contains the complete buffered standard error.
	Stderr string
	// Duration is the wall-clock time from spawn request to observed exit.
	Duration time.Duration
}

// Progress is a free-form progress hint attached to a running task.
type Progress struct {
	Message    string
	Current    int
	Total      int
	Percentage float64
}

// EventType identifies the kind of a streamed execution event.
type EventType string

const (
	// EventStart is emitted once, before any output.
	EventStart EventType = "start"
	// EventOutput carries a raw output chunk.
	EventOutput EventType = "output"
	// EventProgress relays a progress hint.
	EventProgress EventType = "progress"
	// EventComplete is the terminal event and carries the final result.
	EventComplete EventType = "complete"
	// EventError is the terminal event for internal engine faults.
	EventError EventType = "error"
)

// OutputStream tags an output chunk with its originating stream.
type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

// Event is a single streamed execution occurrence. Only the fields relevant
// for its Type are set.
type Event struct {
	Type        EventType
	ExecutionID string
	At          time.Time

	// Command is set on start events.
	Command string
	// Chunk and Stream are set on output events.
	Chunk  []byte
	Stream OutputStream
	// Progress is set on progress events.
	Progress *Progress
	// Result is set on complete events.
	Result *Result
	// Err is set on error events.
	Err error
}

// Stream is the live handle for a streamed execution.
//
// Events carries, in order: one start event, zero or more output events and
// exactly one terminal event, after which the channel is closed. The caller
// must drain Events until it is closed.
type Stream struct {
	// ID is the opaque execution identifier, usable with [Client.CancelExecution].
	ID string
	// Events is the execution's ordered event sequence.
	Events <-chan Event
}

// TaskStatus represents the lifecycle state of a background task.
//
// The lifecycle is:
//
//	running -> completed | failed | cancelled
//
// Terminal states never transition again.
type TaskStatus string

const (
	// TaskStatusRunning indicates the task's execution is still in flight.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the execution finished with exit code 0.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the execution finished unsuccessfully.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled before finishing.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskCategory is a coarse classification of a task's command.
type TaskCategory string

const (
	TaskCategoryBuild    TaskCategory = "build"
	TaskCategoryTest     TaskCategory = "test"
	TaskCategoryDeploy   TaskCategory = "deploy"
	TaskCategoryAnalysis TaskCategory = "analysis"
	TaskCategoryOther    TaskCategory = "other"
)

// Task represents a background task returned by the SDK.
//
// This is a read-only snapshot of the task state at the time of the API call.
// Use [Client.GetTask] to get the latest state.
type Task struct {
	// ID is the unique task identifier (UUID) assigned at creation.
	ID string
	// Command is the command being run.
	Command string
	// ExecutionID is the underlying execution identifier.
	ExecutionID string
	// Status is the current lifecycle state.
	Status TaskStatus
	// Category is the task classification, derived from the command when not
	// set explicitly.
	Category TaskCategory
	// Priority is a free-form caller-supplied ordering hint.
	Priority int
	// StartedAt is when the task was started.
	StartedAt time.Time
	// EndedAt is when the task reached a terminal state. Nil while running.
	EndedAt *time.Time
	// Progress is the latest reported progress hint. Nil if never reported.
	Progress *Progress
	// Result is the execution result. Nil while running.
	Result *Result
}

// TaskOpts configures background task creation.
//
// Pass nil to use defaults (category derived from the command, priority 0).
type TaskOpts struct {
	// Execution configures the underlying command execution.
	Execution ExecuteOpts
	// Category sets the task classification explicitly. When empty, the
	// category is derived from the command text.
	Category TaskCategory
	// Priority is a free-form ordering hint, stored as given.
	Priority int
}

// TaskStats contains aggregate task counts from a single consistent snapshot:
// Total always equals the sum of the per-state counts.
type TaskStats struct {
	Total     int
	Running   int
	Completed int
	Failed    int
	Cancelled int
}

// --- Internal conversion helpers ---

func toInternalExecutionOptions(opts *ExecuteOpts) model.ExecutionOptions {
	if opts == nil {
		return model.ExecutionOptions{}
	}

	return model.ExecutionOptions{
		WorkingDir: opts.WorkingDir,
		Env:        opts.Env,
		Timeout:    opts.Timeout,
	}
}

func toInternalTaskOptions(opts *TaskOpts) model.TaskOptions {
	if opts == nil {
		return model.TaskOptions{}
	}

	return model.TaskOptions{
		Execution: toInternalExecutionOptions(&opts.Execution),
		Category:  model.TaskCategory(opts.Category),
		Priority:  opts.Priority,
	}
}

func fromInternalResult(r *model.ExecutionResult) *Result {
	if r == nil {
		return nil
	}

	return &Result{
		Command:  r.Command,
		Success:  r.Success,
		ExitCode: r.ExitCode,
		Stdout:   r.Stdout,
		Stderr:   r.Stderr,
		Duration: r.Duration,
	}
}

func fromInternalProgress(p *model.Progress) *Progress {
	if p == nil {
		return nil
	}

	return &Progress{
		Message:    p.Message,
		Current:    p.Current,
		Total:      p.Total,
		Percentage: p.Percentage,
	}
}

func toInternalProgress(p Progress) model.Progress {
	return model.Progress{
		Message:    p.Message,
		Current:    p.Current,
		Total:      p.Total,
		Percentage: p.Percentage,
	}
}

func fromInternalTask(t model.BackgroundTask) Task {
	return Task{
		ID:          t.ID,
		Command:     t.Command,
		ExecutionID: t.ExecutionID,
		Status:      TaskStatus(t.Status),
		Category:    TaskCategory(t.Category),
		Priority:    t.Priority,
		StartedAt:   t.StartedAt,
		EndedAt:     t.EndedAt,
		Progress:    fromInternalProgress(t.Progress),
		Result:      fromInternalResult(t.Result),
	}
}

func fromInternalTaskList(ts []model.BackgroundTask) []Task {
	result := make([]Task, len(ts))
	for i, t := range ts {
		result[i] = fromInternalTask(t)
	}
	return result
}

func fromInternalEvent(ev eventbus.Event) Event {
	return Event{
		Type:        EventType(ev.Type),
		ExecutionID: ev.ExecutionID,
		At:          ev.At,
		Command:     ev.Command,
		Chunk:       ev.Chunk,
		Stream:      OutputStream(ev.Stream),
		Progress:    fromInternalProgress(ev.Progress),
		Result:      fromInternalResult(ev.Result),
		Err:         ev.Err,
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		return joinErrors(err, ErrNotFound)
	case errors.Is(err, model.ErrAlreadyExists):
		return joinErrors(err, ErrAlreadyExists)
	case errors.Is(err, model.ErrNotValid):
		return joinErrors(err, ErrNotValid)
	default:
		return err
	}
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

// mappedError keeps the original error chain while also matching the public
// sentinel through errors.Is.
type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
