package queue

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockQueue is a mock implementation of the Queue interface for testing.
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, task Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockQueue) Dequeue(ctx context.Context) (Task, error) {
	args := m.Called(ctx)
	return args.Get(0).(Task), args.Error(1)
}

func (m *MockQueue) Close() {
	m.Called()
}
