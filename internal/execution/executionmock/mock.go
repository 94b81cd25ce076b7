package executionmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/runforge/runforge/internal/execution"
	"github.com/runforge/runforge/internal/model"
)

// MockEngine is a testify mock of execution.Engine.
type MockEngine struct {
	mock.Mock
}

var _ execution.Engine = &MockEngine{}

func (m *MockEngine) Execute(ctx context.Context, command string, opts model.ExecutionOptions) (*model.ExecutionResult, error) {
	args := m.Called(ctx, command, opts)

	var res *model.ExecutionResult
	if args.Get(0) != nil {
		res = args.Get(0).(*model.ExecutionResult)
	}
	return res, args.Error(1)
}

func (m *MockEngine) Stream(ctx context.Context, command string, opts model.ExecutionOptions) (*execution.Stream, error) {
	args := m.Called(ctx, command, opts)

	var st *execution.Stream
	if args.Get(0) != nil {
		st = args.Get(0).(*execution.Stream)
	}
	return st, args.Error(1)
}

func (m *MockEngine) Cancel(executionID string) bool {
	args := m.Called(executionID)
	return args.Bool(0)
}

func (m *MockEngine) Status(executionID string) *execution.Status {
	args := m.Called(executionID)

	var st *execution.Status
	if args.Get(0) != nil {
		st = args.Get(0).(*execution.Status)
	}
	return st
}

func (m *MockEngine) ReportProgress(executionID string, p model.Progress) bool {
	args := m.Called(executionID, p)
	return args.Bool(0)
}

func (m *MockEngine) Cleanup() {
	m.Called()
}
