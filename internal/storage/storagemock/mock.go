package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/runforge/runforge/internal/model"
	"github.com/runforge/runforge/internal/storage"
)

// MockTaskRepository is a testify mock of storage.TaskRepository.
type MockTaskRepository struct {
	mock.Mock
}

var _ storage.TaskRepository = &MockTaskRepository{}

func (m *MockTaskRepository) CreateTask(ctx context.Context, task model.BackgroundTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskRepository) GetTask(ctx context.Context, id string) (*model.BackgroundTask, error) {
	args := m.Called(ctx, id)

	var task *model.BackgroundTask
	if args.Get(0) != nil {
		task = args.Get(0).(*model.BackgroundTask)
	}
	return task, args.Error(1)
}

func (m *MockTaskRepository) ListTasks(ctx context.Context) ([]model.BackgroundTask, error) {
	args := m.Called(ctx)

	var tasks []model.BackgroundTask
	if args.Get(0) != nil {
		tasks = args.Get(0).([]model.BackgroundTask)
	}
	return tasks, args.Error(1)
}

func (m *MockTaskRepository) UpdateTask(ctx context.Context, task model.BackgroundTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskRepository) DeleteTask(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskRepository) DeleteAllTasks(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
