package queue

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockQueue records enqueued tasks for assertions.
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, task Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockQueue) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	args := m.Called(ctx, taskType, handler)
	return args.Error(0)
}

// Enqueued returns the tasks of type t passed to Enqueue, in call order,
// including calls that were answered with an error.
func (m *MockQueue) Enqueued(t TaskType) []Task {
	var tasks []Task
	for _, call := range m.Calls {
		if call.Method != "Enqueue" {
			continue
		}
		if task, ok := call.Arguments.Get(1).(Task); ok && task.Type == t {
			tasks = append(tasks, task)
		}
	}
	return tasks
}
