package task_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/runforge/runforge/internal/eventbus"
	"github.com/runforge/runforge/internal/execution"
	"github.com/runforge/runforge/internal/execution/executionmock"
	"github.com/runforge/runforge/internal/model"
	"github.com/runforge/runforge/internal/storage/memory"
	"github.com/runforge/runforge/internal/task"
)

const (
	waitTimeout = 5 * time.Second
	waitTick    = 10 * time.Millisecond
)

func newTestService(t *testing.T, engine execution.Engine) (*task.Service, *memory.Repository) {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	svc, err := task.NewService(task.ServiceConfig{
		Engine:     engine,
		Repository: repo,
	})
	require.NoError(t, err)

	return svc, repo
}

// scriptedStream hands back a stream whose events the test feeds by hand.
func scriptedStream(executionID string) (*execution.Stream, chan eventbus.Event) {
	events := make(chan eventbus.Event, 16)
	return &execution.Stream{ID: executionID, Events: events}, events
}

func successResult(command string) *model.ExecutionResult {
	return &model.ExecutionResult{Command: command, Success: true, ExitCode: 0, Stdout: "ok\n"}
}

func waitForStatus(t *testing.T, svc *task.Service, taskID string, status model.TaskStatus) *model.BackgroundTask {
	t.Helper()

	var got *model.BackgroundTask
	require.Eventually(t, func() bool {
		task, err := svc.GetTask(context.TODO(), taskID)
		if err != nil || task == nil || task.Status != status {
			return false
		}
		got = task
		return true
	}, waitTimeout, waitTick)

	return got
}

func TestRunBackground(t *testing.T) {
	tests := map[string]struct {
		result    *model.ExecutionResult
		expStatus model.TaskStatus
	}{
		"A successful execution should complete the task": {
			result:    successResult("echo hi"),
			expStatus: model.TaskStatusCompleted,
		},

		"A failed execution should fail the task": {
			result:    &model.ExecutionResult{Command: "false", Success: false, ExitCode: 1},
			expStatus: model.TaskStatusFailed,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			st, events := scriptedStream("exec-1")
			engine := &executionmock.MockEngine{}
			engine.On("Stream", mock.Anything, mock.Anything, mock.Anything).Once().Return(st, nil)

			svc, _ := newTestService(t, engine)

			taskID, err := svc.RunBackground(context.TODO(), test.result.Command, model.TaskOptions{})
			require.NoError(t, err)
			require.NotEmpty(t, taskID)

			// The task is visible and running before any event arrives.
			running, err := svc.GetTask(context.TODO(), taskID)
			require.NoError(t, err)
			require.NotNil(t, running)
			assert.Equal(model.TaskStatusRunning, running.Status)
			assert.Equal("exec-1", running.ExecutionID)
			assert.Nil(running.EndedAt)

			events <- eventbus.Event{Type: eventbus.TypeStart, ExecutionID: "exec-1"}
			events <- eventbus.Event{Type: eventbus.TypeComplete, ExecutionID: "exec-1", Result: test.result}
			close(events)

			got := waitForStatus(t, svc, taskID, test.expStatus)
			require.NotNil(t, got.Result)
			assert.Equal(test.result, got.Result)
			require.NotNil(t, got.EndedAt)

			engine.AssertExpectations(t)
		})
	}
}

func TestRunBackgroundEmptyCommand(t *testing.T) {
	svc, _ := newTestService(t, &executionmock.MockEngine{})

	_, err := svc.RunBackground(context.TODO(), "   ", model.TaskOptions{})

	assert.ErrorIs(t, err, model.ErrNotValid)
}

func TestRunBackgroundSpawnFailure(t *testing.T) {
	assert := assert.New(t)

	engine := &executionmock.MockEngine{}
	engine.On("Stream", mock.Anything, mock.Anything, mock.Anything).Once().
		Return(nil, errors.New("no such shell"))

	svc, _ := newTestService(t, engine)

	taskID, err := svc.RunBackground(context.TODO(), "echo hi", model.TaskOptions{})
	require.NoError(t, err)

	got, err := svc.GetTask(context.TODO(), taskID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(model.TaskStatusFailed, got.Status)
	require.NotNil(t, got.Result)
	assert.False(got.Result.Success)
	assert.Equal(-1, got.Result.ExitCode)
	assert.Contains(got.Result.Stderr, "no such shell")
	require.NotNil(t, got.EndedAt)
}

func TestRunBackgroundClassifiesCategory(t *testing.T) {
	assert := assert.New(t)

	st, events := scriptedStream("exec-1")
	close(events)
	engine := &executionmock.MockEngine{}
	engine.On("Stream", mock.Anything, mock.Anything, mock.Anything).Once().Return(st, nil)

	svc, _ := newTestService(t, engine)

	taskID, err := svc.RunBackground(context.TODO(), "go test ./...", model.TaskOptions{})
	require.NoError(t, err)

	got, err := svc.GetTask(context.TODO(), taskID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(model.TaskCategoryTest, got.Category)
}

func TestRunBackgroundProgress(t *testing.T) {
	assert := assert.New(t)

	st, events := scriptedStream("exec-1")
	engine := &executionmock.MockEngine{}
	engine.On("Stream", mock.Anything, mock.Anything, mock.Anything).Once().Return(st, nil)

	svc, _ := newTestService(t, engine)

	taskID, err := svc.RunBackground(context.TODO(), "make build", model.TaskOptions{})
	require.NoError(t, err)

	progress := &model.Progress{Message: "compiling", Current: 3, Total: 10, Percentage: 30}
	events <- eventbus.Event{Type: eventbus.TypeProgress, ExecutionID: "exec-1", Progress: progress}

	require.Eventually(t, func() bool {
		task, err := svc.GetTask(context.TODO(), taskID)
		return err == nil && task != nil && task.Progress != nil
	}, waitTimeout, waitTick)

	got, err := svc.GetTask(context.TODO(), taskID)
	require.NoError(t, err)
	assert.Equal(progress, got.Progress)
	assert.Equal(model.TaskStatusRunning, got.Status)

	events <- eventbus.Event{Type: eventbus.TypeComplete, ExecutionID: "exec-1", Result: successResult("make build")}
	close(events)
	waitForStatus(t, svc, taskID, model.TaskStatusCompleted)
}

func TestRunBackgroundEngineFault(t *testing.T) {
	assert := assert.New(t)

	st, events := scriptedStream("exec-1")
	engine := &executionmock.MockEngine{}
	engine.On("Stream", mock.Anything, mock.Anything, mock.Anything).Once().Return(st, nil)

	svc, _ := newTestService(t, engine)

	taskID, err := svc.RunBackground(context.TODO(), "echo hi", model.TaskOptions{})
	require.NoError(t, err)

	events <- eventbus.Event{Type: eventbus.TypeError, ExecutionID: "exec-1", Err: errors.New("boom")}
	close(events)

	got := waitForStatus(t, svc, taskID, model.TaskStatusFailed)
	require.NotNil(t, got.Result)
	assert.False(got.Result.Success)
	assert.Equal(-1, got.Result.ExitCode)
}

func TestCancelTask(t *testing.T) {
	assert := assert.New(t)

	st, events := scriptedStream("exec-1")
	engine := &executionmock.MockEngine{}
	engine.On("Stream", mock.Anything, mock.Anything, mock.Anything).Once().Return(st, nil)
	engine.On("Cancel", "exec-1").Once().Return(true)

	svc, _ := newTestService(t, engine)

	taskID, err := svc.RunBackground(context.TODO(), "sleep 60", model.TaskOptions{})
	require.NoError(t, err)

	assert.True(svc.CancelTask(context.TODO(), taskID))

	got, err := svc.GetTask(context.TODO(), taskID)
	require.NoError(t, err)
	assert.Equal(model.TaskStatusCancelled, got.Status)
	require.NotNil(t, got.EndedAt)

	// A second cancel is a no-op, the task is no longer running.
	assert.False(svc.CancelTask(context.TODO(), taskID))

	// The late terminal event attaches the result but keeps the status.
	cancelledResult := &model.ExecutionResult{Command: "sleep 60", Success: false, ExitCode: -1, Stderr: "command cancelled\n"}
	events <- eventbus.Event{Type: eventbus.TypeComplete, ExecutionID: "exec-1", Result: cancelledResult}
	close(events)

	require.Eventually(t, func() bool {
		task, err := svc.GetTask(context.TODO(), taskID)
		return err == nil && task != nil && task.Result != nil
	}, waitTimeout, waitTick)

	got, err = svc.GetTask(context.TODO(), taskID)
	require.NoError(t, err)
	assert.Equal(model.TaskStatusCancelled, got.Status)
	assert.Equal(cancelledResult, got.Result)

	engine.AssertExpectations(t)
}

func TestCancelTaskUnknown(t *testing.T) {
	svc, _ := newTestService(t, &executionmock.MockEngine{})

	assert.False(t, svc.CancelTask(context.TODO(), "missing"))
}

func TestGetTaskUnknown(t *testing.T) {
	svc, _ := newTestService(t, &executionmock.MockEngine{})

	got, err := svc.GetTask(context.TODO(), "missing")

	assert.NoError(t, err)
	assert.Nil(t, got)
}

func seedTask(ctx context.Context, t *testing.T, repo *memory.Repository, id, command string, status model.TaskStatus, category model.TaskCategory, startedAt time.Time) {
	t.Helper()

	task := model.BackgroundTask{
		ID:        id,
		Command:   command,
		Status:    status,
		Category:  category,
		StartedAt: startedAt,
	}
	if status.Finished() {
		ended := startedAt.Add(time.Second)
		task.EndedAt = &ended
	}
	require.NoError(t, repo.CreateTask(ctx, task))
}

func TestClearCompleted(t *testing.T) {
	assert := assert.New(t)

	svc, repo := newTestService(t, &executionmock.MockEngine{})

	ctx := context.TODO()
	now := time.Now()
	seedTask(ctx, t, repo, "t1", "make build", model.TaskStatusCompleted, "", now)
	seedTask(ctx, t, repo, "t2", "make test", model.TaskStatusFailed, "", now.Add(time.Second))
	seedTask(ctx, t, repo, "t3", "sleep 60", model.TaskStatusRunning, "", now.Add(2*time.Second))
	seedTask(ctx, t, repo, "t4", "make lint", model.TaskStatusCancelled, "", now.Add(3*time.Second))

	require.NoError(t, svc.ClearCompleted(ctx))

	tasks, err := svc.GetTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal("t3", tasks[0].ID)
	assert.Equal("t4", tasks[1].ID)
}

func TestGetTasksByCategory(t *testing.T) {
	svc, repo := newTestService(t, &executionmock.MockEngine{})

	ctx := context.TODO()
	now := time.Now()
	seedTask(ctx, t, repo, "t1", "make build", model.TaskStatusCompleted, model.TaskCategoryBuild, now)
	seedTask(ctx, t, repo, "t2", "go test ./...", model.TaskStatusCompleted, "", now.Add(time.Second))
	seedTask(ctx, t, repo, "t3", "sleep 60", model.TaskStatusRunning, "", now.Add(2*time.Second))

	tests := map[string]struct {
		category model.TaskCategory
		expIDs   []string
	}{
		"An explicit category should match recorded tasks": {
			category: model.TaskCategoryBuild,
			expIDs:   []string{"t1"},
		},

		"Uncategorized tasks should be classified from their command": {
			category: model.TaskCategoryTest,
			expIDs:   []string{"t2"},
		},

		"Unmatched commands should fall into the other category": {
			category: model.TaskCategoryOther,
			expIDs:   []string{"t3"},
		},

		"An empty category should return everything": {
			category: "",
			expIDs:   []string{"t1", "t2", "t3"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			tasks, err := svc.GetTasksByCategory(ctx, test.category)
			require.NoError(t, err)

			ids := make([]string, 0, len(tasks))
			for _, task := range tasks {
				ids = append(ids, task.ID)
			}
			assert.Equal(t, test.expIDs, ids)
		})
	}
}

func TestTaskStats(t *testing.T) {
	assert := assert.New(t)

	svc, repo := newTestService(t, &executionmock.MockEngine{})

	ctx := context.TODO()
	now := time.Now()
	seedTask(ctx, t, repo, "t1", "a", model.TaskStatusRunning, "", now)
	seedTask(ctx, t, repo, "t2", "b", model.TaskStatusRunning, "", now)
	seedTask(ctx, t, repo, "t3", "c", model.TaskStatusCompleted, "", now)
	seedTask(ctx, t, repo, "t4", "d", model.TaskStatusFailed, "", now)
	seedTask(ctx, t, repo, "t5", "e", model.TaskStatusCancelled, "", now)

	stats, err := svc.TaskStats(ctx)
	require.NoError(t, err)

	assert.Equal(&model.TaskStats{Total: 5, Running: 2, Completed: 1, Failed: 1, Cancelled: 1}, stats)
	assert.Equal(stats.Total, stats.Running+stats.Completed+stats.Failed+stats.Cancelled)

	running, err := svc.RunningTasksCount(ctx)
	require.NoError(t, err)
	assert.Equal(2, running)
}

func TestReportTaskProgress(t *testing.T) {
	assert := assert.New(t)

	engine := &executionmock.MockEngine{}
	progress := model.Progress{Message: "halfway", Percentage: 50}
	engine.On("ReportProgress", "exec-1", progress).Once().Return(true)

	svc, repo := newTestService(t, engine)

	ctx := context.TODO()
	require.NoError(t, repo.CreateTask(ctx, model.BackgroundTask{
		ID:          "t1",
		Command:     "make build",
		ExecutionID: "exec-1",
		Status:      model.TaskStatusRunning,
		StartedAt:   time.Now(),
	}))

	assert.True(svc.ReportTaskProgress(ctx, "t1", progress))
	assert.False(svc.ReportTaskProgress(ctx, "missing", progress))

	engine.AssertExpectations(t)
}

func TestCleanup(t *testing.T) {
	assert := assert.New(t)

	engine := &executionmock.MockEngine{}
	engine.On("Cleanup").Once()

	svc, repo := newTestService(t, engine)

	ctx := context.TODO()
	seedTask(ctx, t, repo, "t1", "a", model.TaskStatusRunning, "", time.Now())

	require.NoError(t, svc.Cleanup(ctx))

	tasks, err := svc.GetTasks(ctx)
	require.NoError(t, err)
	assert.Empty(tasks)

	engine.AssertExpectations(t)
}

func TestFinishedTaskEviction(t *testing.T) {
	assert := assert.New(t)

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	engine := &executionmock.MockEngine{}
	svc, err := task.NewService(task.ServiceConfig{
		Engine:           engine,
		Repository:       repo,
		MaxFinishedTasks: 2,
	})
	require.NoError(t, err)

	ctx := context.TODO()
	now := time.Now()
	seedTask(ctx, t, repo, "old1", "a", model.TaskStatusCompleted, "", now)
	seedTask(ctx, t, repo, "old2", "b", model.TaskStatusFailed, "", now.Add(time.Second))
	seedTask(ctx, t, repo, "live", "c", model.TaskStatusRunning, "", now.Add(2*time.Second))

	// A third finished task pushes the oldest one out.
	st, events := scriptedStream("exec-1")
	engine.On("Stream", mock.Anything, mock.Anything, mock.Anything).Once().Return(st, nil)

	taskID, err := svc.RunBackground(ctx, "echo hi", model.TaskOptions{})
	require.NoError(t, err)

	events <- eventbus.Event{Type: eventbus.TypeComplete, ExecutionID: "exec-1", Result: successResult("echo hi")}
	close(events)
	waitForStatus(t, svc, taskID, model.TaskStatusCompleted)

	require.Eventually(t, func() bool {
		task, err := svc.GetTask(ctx, "old1")
		return err == nil && task == nil
	}, waitTimeout, waitTick)

	tasks, err := svc.GetTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	ids := map[string]bool{}
	for _, task := range tasks {
		ids[task.ID] = true
	}
	assert.True(ids["old2"])
	assert.True(ids["live"])
	assert.True(ids[taskID])
}

func TestClassifyCommand(t *testing.T) {
	tests := map[string]struct {
		command     string
		expCategory model.TaskCategory
	}{
		"Test commands should classify as test":           {command: "go test ./...", expCategory: model.TaskCategoryTest},
		"Build commands should classify as build":         {command: "make build", expCategory: model.TaskCategoryBuild},
		"Compile commands should classify as build":       {command: "gcc -c compile.c", expCategory: model.TaskCategoryBuild},
		"Deploy commands should classify as deploy":       {command: "kubectl apply -f deploy.yaml", expCategory: model.TaskCategoryDeploy},
		"Lint commands should classify as analysis":       {command: "golangci-lint run", expCategory: model.TaskCategoryAnalysis},
		"Test wins over build when both match":            {command: "make build-and-test", expCategory: model.TaskCategoryTest},
		"Unmatched commands should classify as other":     {command: "ls -la", expCategory: model.TaskCategoryOther},
		"Classification should be case insensitive":       {command: "MAKE BUILD", expCategory: model.TaskCategoryBuild},
		"Substrings inside words should count as a match": {command: "./runtests.sh", expCategory: model.TaskCategoryTest},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expCategory, task.ClassifyCommand(test.command))
		})
	}
}
