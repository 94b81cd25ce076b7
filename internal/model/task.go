package model

import (
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a background task.
//
// The lifecycle is:
//
//	running -> completed | failed | cancelled
//
// All three terminal states are mutually exclusive and final.
type TaskStatus string

const (
	// TaskStatusRunning indicates the underlying execution is still in flight.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the execution finished with exit code 0.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the execution finished unsuccessfully.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled by the caller.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Finished returns true for any terminal status.
func (s TaskStatus) Finished() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskCategory is a caller-supplied classification hint for background tasks.
// It is bookkeeping only and never alters scheduling.
type TaskCategory string

const (
	TaskCategoryBuild    TaskCategory = "build"
	TaskCategoryTest     TaskCategory = "test"
	TaskCategoryDeploy   TaskCategory = "deploy"
	TaskCategoryAnalysis TaskCategory = "analysis"
	TaskCategoryOther    TaskCategory = "other"
)

// BackgroundTask is a named, longer-lived wrapper around one streamed
// execution. Consumers always receive copies, never shared references.
type BackgroundTask struct {
	// ID is the unique task identifier (UUID) assigned at creation.
	ID string
	// Command is the originating command string.
	Command string
	// ExecutionID is the identifier of the underlying execution.
	ExecutionID string
	// Status is the current lifecycle state.
	Status TaskStatus
	// Category is the classification recorded at creation time.
	Category TaskCategory
	// Priority is a caller bookkeeping hint. There is no priority queue, all
	// tasks run immediately and concurrently.
	Priority int
	// StartedAt is when the task was created.
	StartedAt time.Time
	// EndedAt is when the task reached a terminal state. Nil while running.
	EndedAt *time.Time
	// Progress is the last progress snapshot seen for the execution, if any.
	Progress *Progress
	// Result is the final execution result. Nil while running; for cancelled
	// tasks it holds the synthesized failure result once the process is reaped.
	Result *ExecutionResult
}

// TaskOptions configures the creation of a background task.
type TaskOptions struct {
	// Execution configures the underlying command execution.
	Execution ExecutionOptions
	// Category classifies the task. When empty, a best-effort classification is
	// derived from the command text.
	Category TaskCategory
	// Priority is recorded for caller bookkeeping only.
	Priority int
}

// TaskStats are aggregate counts over the current task snapshots.
// Total is always the sum of the per-state counts.
type TaskStats struct {
	Total     int
	Running   int
	Completed int
	Failed    int
	Cancelled int
}

// TaskSpec describes one named task in a batch definition.
type TaskSpec struct {
	Name    string
	Command string
	Options TaskOptions
}

// Validate validates the task spec.
func (s *TaskSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required: %w", ErrNotValid)
	}
	if s.Command == "" {
		return fmt.Errorf("command is required: %w", ErrNotValid)
	}
	return nil
}
