package lib

import (
	"context"
	"fmt"

	"github.com/runforge/runforge/internal/model"
)

// RunBackground starts a command as a background task and returns its task ID
// immediately.
//
// The task's status, progress and result are tracked by the client and can be
// inspected with [Client.GetTask]. Returns [ErrNotValid] for an empty command.
func (c *Client) RunBackground(ctx context.Context, command string, opts *TaskOpts) (string, error) {
	taskID, err := c.tasks.RunBackground(ctx, command, toInternalTaskOptions(opts))
	if err != nil {
		return "", mapError(err)
	}

	return taskID, nil
}

// GetTask returns a snapshot of a background task.
//
// Returns [ErrNotFound] if the task does not exist (including tasks evicted
// from the finished-task history).
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	t, err := c.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, mapError(err)
	}
	if t == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}

	task := fromInternalTask(*t)
	return &task, nil
}

// ListTasks returns snapshots of all tracked tasks, ordered by start time
// (oldest first).
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	tasks, err := c.tasks.GetTasks(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalTaskList(tasks), nil
}

// ListTasksByCategory filters tasks by category. Tasks recorded without an
// explicit category are classified from their command text. An empty category
// returns all tasks.
func (c *Client) ListTasksByCategory(ctx context.Context, category TaskCategory) ([]Task, error) {
	tasks, err := c.tasks.GetTasksByCategory(ctx, model.TaskCategory(category))
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalTaskList(tasks), nil
}

// CancelTask cancels a running task.
//
// It returns false for unknown tasks, tasks already in a terminal state and
// executions that could not be signalled. Cancellation is asynchronous: the
// task keeps status [TaskStatusCancelled] and its result is attached once the
// process has actually died.
func (c *Client) CancelTask(ctx context.Context, taskID string) bool {
	return c.tasks.CancelTask(ctx, taskID)
}

// ReportTaskProgress attaches a progress hint to a running task. Returns
// false for unknown or already finished tasks.
func (c *Client) ReportTaskProgress(ctx context.Context, taskID string, p Progress) bool {
	return c.tasks.ReportTaskProgress(ctx, taskID, toInternalProgress(p))
}

// Stats returns aggregate task counts from a single consistent snapshot.
func (c *Client) Stats(ctx context.Context) (*TaskStats, error) {
	stats, err := c.tasks.TaskStats(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	return &TaskStats{
		Total:     stats.Total,
		Running:   stats.Running,
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Cancelled: stats.Cancelled,
	}, nil
}

// ClearCompleted removes every completed or failed task from the history.
// Running and cancelled tasks are kept.
func (c *Client) ClearCompleted(ctx context.Context) error {
	if err := c.tasks.ClearCompleted(ctx); err != nil {
		return mapError(err)
	}
	return nil
}
