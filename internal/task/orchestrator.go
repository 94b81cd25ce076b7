// Package task implements the background task orchestrator: named,
// longer-lived wrappers around streamed executions with their own lifecycle
// state, progress snapshots, categories and aggregate statistics.
package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runforge/runforge/internal/execution"
	"github.com/runforge/runforge/internal/eventbus"
	"github.com/runforge/runforge/internal/log"
	"github.com/runforge/runforge/internal/model"
	"github.com/runforge/runforge/internal/storage"
)

const defaultMaxFinishedTasks = 500

// ServiceConfig is the configuration for the orchestrator service.
type ServiceConfig struct {
	Engine     execution.Engine
	Repository storage.TaskRepository
	Logger     log.Logger

	// MaxFinishedTasks bounds the number of terminal task records kept in the
	// repository; the oldest finished ones are evicted on overflow. Zero means
	// the default (500), negative means unbounded.
	MaxFinishedTasks int
}

func (c *ServiceConfig) defaults() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "task.Orchestrator"})

	if c.MaxFinishedTasks == 0 {
		c.MaxFinishedTasks = defaultMaxFinishedTasks
	}

	return nil
}

// Service orchestrates background tasks on top of an execution engine.
// Safe for concurrent use.
type Service struct {
	engine      execution.Engine
	repo        storage.TaskRepository
	logger      log.Logger
	maxFinished int

	// updateMu serializes read-modify-write task updates, the repository only
	// guarantees atomicity per call.
	updateMu sync.Mutex
}

// NewService creates a new orchestrator service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		engine:      cfg.Engine,
		repo:        cfg.Repository,
		logger:      cfg.Logger,
		maxFinished: cfg.MaxFinishedTasks,
	}, nil
}

// RunBackground records a new running task and spawns its execution. It
// returns the task ID immediately, never blocking on the execution itself.
//
// Wiring failures after the task has been recorded become a failed task with
// a synthesized result instead of an error.
func (s *Service) RunBackground(ctx context.Context, command string, opts model.TaskOptions) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", fmt.Errorf("command cannot be empty: %w", model.ErrNotValid)
	}

	category := opts.Category
	if category == "" {
		category = ClassifyCommand(command)
	}

	task := model.BackgroundTask{
		ID:        uuid.NewString(),
		Command:   command,
		Status:    model.TaskStatusRunning,
		Category:  category,
		Priority:  opts.Priority,
		StartedAt: time.Now(),
	}

	st, err := s.engine.Stream(ctx, command, opts.Execution)
	if err != nil {
		// Convert the wiring failure into a failed task so callers can observe
		// it through the regular task API.
		now := time.Now()
		task.Status = model.TaskStatusFailed
		task.EndedAt = &now
		task.Result = synthesizeFailure(command, err)
		if err := s.repo.CreateTask(ctx, task); err != nil {
			return "", fmt.Errorf("could not store task: %w", err)
		}
		s.logger.Warningf("Background task %s failed to start: %v", task.ID, err)
		return task.ID, nil
	}

	task.ExecutionID = st.ID
	if err := s.repo.CreateTask(ctx, task); err != nil {
		s.engine.Cancel(st.ID)
		return "", fmt.Errorf("could not store task: %w", err)
	}

	s.logger.Debugf("Started background task %s (execution %s): %s", task.ID, st.ID, command)
	go s.watch(task.ID, st)

	return task.ID, nil
}

// watch projects the execution's event stream onto the task record. The loop
// ends when the stream closes, right after its single terminal event, so no
// listener ever dangles.
func (s *Service) watch(taskID string, st *execution.Stream) {
	ctx := context.Background()

	for ev := range st.Events {
		switch ev.Type {
		case eventbus.TypeProgress:
			s.updateTask(ctx, taskID, func(t *model.BackgroundTask) {
				t.Progress = ev.Progress
			})

		case eventbus.TypeComplete:
			s.finishTask(ctx, taskID, ev.Result)

		case eventbus.TypeError:
			s.logger.Errorf("Background task %s: engine fault: %v", taskID, ev.Err)
			s.finishTask(ctx, taskID, nil)
		}
	}
}

func (s *Service) finishTask(ctx context.Context, taskID string, result *model.ExecutionResult) {
	s.updateTask(ctx, taskID, func(t *model.BackgroundTask) {
		if result == nil {
			result = synthesizeFailure(t.Command, errors.New("execution ended without a result"))
		}
		t.Result = result

		// A task cancelled through CancelTask keeps its status, the late
		// result is only attached for inspection.
		if t.Status == model.TaskStatusRunning {
			if result.Success {
				t.Status = model.TaskStatusCompleted
			} else {
				t.Status = model.TaskStatusFailed
			}
		}

		if t.EndedAt == nil {
			now := time.Now()
			t.EndedAt = &now
		}
	})

	s.evictFinished(ctx)
}

func (s *Service) updateTask(ctx context.Context, taskID string, mutate func(*model.BackgroundTask)) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		s.logger.Warningf("Could not load task %s for update: %v", taskID, err)
		return
	}

	mutate(task)

	if err := s.repo.UpdateTask(ctx, *task); err != nil {
		s.logger.Warningf("Could not update task %s: %v", taskID, err)
	}
}

// CancelTask cancels a running task. It returns false for unknown tasks,
// tasks already in a terminal state and executions that could not be
// signalled.
func (s *Service) CancelTask(ctx context.Context, taskID string) bool {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil || task.Status != model.TaskStatusRunning {
		return false
	}

	if !s.engine.Cancel(task.ExecutionID) {
		return false
	}

	s.updateTask(ctx, taskID, func(t *model.BackgroundTask) {
		if t.Status != model.TaskStatusRunning {
			return
		}
		t.Status = model.TaskStatusCancelled
		now := time.Now()
		t.EndedAt = &now
	})

	s.logger.Debugf("Cancelled background task %s", taskID)
	return true
}

// GetTask returns a snapshot of a task, or nil if the ID is unknown.
func (s *Service) GetTask(ctx context.Context, taskID string) (*model.BackgroundTask, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	return task, nil
}

// GetTasks returns snapshots of all tasks.
func (s *Service) GetTasks(ctx context.Context) ([]model.BackgroundTask, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}
	return tasks, nil
}

// ClearCompleted removes every completed or failed task. Running tasks stay,
// and cancelled tasks deliberately stay too: cancellation history remains
// inspectable until cleared explicitly via Cleanup.
func (s *Service) ClearCompleted(ctx context.Context) error {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	for _, t := range tasks {
		if t.Status != model.TaskStatusCompleted && t.Status != model.TaskStatusFailed {
			continue
		}
		if err := s.repo.DeleteTask(ctx, t.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("could not delete task %s: %w", t.ID, err)
		}
	}

	return nil
}

// GetTasksByCategory filters tasks by category. Tasks recorded without an
// explicit category are classified from their command text on the fly. An
// empty category returns all tasks.
func (s *Service) GetTasksByCategory(ctx context.Context, category model.TaskCategory) ([]model.BackgroundTask, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}

	if category == "" {
		return tasks, nil
	}

	filtered := make([]model.BackgroundTask, 0, len(tasks))
	for _, t := range tasks {
		effective := t.Category
		if effective == "" {
			effective = ClassifyCommand(t.Command)
		}
		if effective == category {
			filtered = append(filtered, t)
		}
	}

	return filtered, nil
}

// RunningTasksCount returns the number of tasks currently running.
func (s *Service) RunningTasksCount(ctx context.Context) (int, error) {
	stats, err := s.TaskStats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Running, nil
}

// TaskStats returns aggregate counts over a single task snapshot, so the
// total always equals the sum of the per-state counts.
func (s *Service) TaskStats(ctx context.Context) (*model.TaskStats, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}

	stats := &model.TaskStats{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case model.TaskStatusRunning:
			stats.Running++
		case model.TaskStatusCompleted:
			stats.Completed++
		case model.TaskStatusFailed:
			stats.Failed++
		case model.TaskStatusCancelled:
			stats.Cancelled++
		}
	}

	return stats, nil
}

// ReportTaskProgress relays a progress hint for a running task's execution.
func (s *Service) ReportTaskProgress(ctx context.Context, taskID string, p model.Progress) bool {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil || task.Status != model.TaskStatusRunning {
		return false
	}
	return s.engine.ReportProgress(task.ExecutionID, p)
}

// Cleanup kills every tracked execution and clears all task records.
func (s *Service) Cleanup(ctx context.Context) error {
	s.engine.Cleanup()
	if err := s.repo.DeleteAllTasks(ctx); err != nil {
		return fmt.Errorf("could not clear tasks: %w", err)
	}
	s.logger.Debugf("Orchestrator cleaned up")
	return nil
}

// evictFinished enforces the finished-task history bound, deleting the oldest
// terminal records first. Running tasks are never evicted.
func (s *Service) evictFinished(ctx context.Context) {
	if s.maxFinished < 0 {
		return
	}

	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		s.logger.Warningf("Could not list tasks for eviction: %v", err)
		return
	}

	finished := make([]model.BackgroundTask, 0, len(tasks))
	for _, t := range tasks {
		if t.Status.Finished() {
			finished = append(finished, t)
		}
	}

	// ListTasks is ordered oldest first.
	for i := 0; len(finished)-i > s.maxFinished; i++ {
		if err := s.repo.DeleteTask(ctx, finished[i].ID); err != nil && !errors.Is(err, model.ErrNotFound) {
			s.logger.Warningf("Could not evict task %s: %v", finished[i].ID, err)
		}
	}
}

func synthesizeFailure(command string, err error) *model.ExecutionResult {
	return &model.ExecutionResult{
		Command:  command,
		Success:  false,
		ExitCode: -1,
		Stderr:   err.Error() + "\n",
	}
}

// ClassifyCommand derives a best-effort category from a command's text.
// First match wins, in test, build, deploy, analysis order.
func ClassifyCommand(command string) model.TaskCategory {
	c := strings.ToLower(command)

	switch {
	case containsAny(c, "test", "spec"):
		return model.TaskCategoryTest
	case containsAny(c, "build", "compile", "make"):
		return model.TaskCategoryBuild
	case containsAny(c, "deploy", "release", "publish", "push"):
		return model.TaskCategoryDeploy
	case containsAny(c, "lint", "vet", "analyze", "analyse", "check", "audit"):
		return model.TaskCategoryAnalysis
	default:
		return model.TaskCategoryOther
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
