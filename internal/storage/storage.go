package storage

import (
	"context"

	"github.com/runforge/runforge/internal/model"
)

// TaskRepository is the storage interface for background task records.
//
// Implementations return copies, never shared references, so callers can not
// corrupt the orchestrator's bookkeeping.
type TaskRepository interface {
	CreateTask(ctx context.Context, task model.BackgroundTask) error
	GetTask(ctx context.Context, id string) (*model.BackgroundTask, error)
	ListTasks(ctx context.Context) ([]model.BackgroundTask, error)
	UpdateTask(ctx context.Context, task model.BackgroundTask) error
	DeleteTask(ctx context.Context, id string) error
	DeleteAllTasks(ctx context.Context) error
}
