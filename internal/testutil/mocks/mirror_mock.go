package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vytor/lexisync/internal/models"
)

// MockMirror is a mock implementation of mirror.Mirror
type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) FetchAll(ctx context.Context, ownerID string) ([]models.EntryRecord, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EntryRecord), args.Error(1)
}

func (m *MockMirror) Put(ctx context.Context, ownerID string, rec models.EntryRecord) error {
	args := m.Called(ctx, ownerID, rec)
	return args.Error(0)
}

func (m *MockMirror) Delete(ctx context.Context, ownerID, id string) error {
	args := m.Called(ctx, ownerID, id)
	return args.Error(0)
}

func (m *MockMirror) Subscribe(ctx context.Context, ownerID string, onSnapshot func([]models.EntryRecord)) (<-chan struct{}, error) {
	args := m.Called(ctx, ownerID, onSnapshot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan struct{}), args.Error(1)
}
