package mocks

import (
	"github.com/stretchr/testify/mock"
	"github.com/vytor/lexisync/internal/models"
)

// MockSyncQueue is a mock implementation of jobs.SyncQueue
type MockSyncQueue struct {
	mock.Mock
}

func (m *MockSyncQueue) EnqueueSyncUp(ownerID string, entry models.WordEntry, done func(error)) error {
	args := m.Called(ownerID, entry, done)
	return args.Error(0)
}

func (m *MockSyncQueue) EnqueueRemoval(ownerID, id string, done func(error)) error {
	args := m.Called(ownerID, id, done)
	return args.Error(0)
}
