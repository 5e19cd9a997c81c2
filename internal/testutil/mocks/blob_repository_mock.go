package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vytor/lexisync/internal/repository"
)

// MockBlobRepository is a mock implementation of repository.BlobRepository
type MockBlobRepository struct {
	mock.Mock
}

func (m *MockBlobRepository) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBlobRepository) Put(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockBlobRepository) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockBlobRepository) List(ctx context.Context, prefix string) ([]repository.Blob, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.Blob), args.Error(1)
}

func (m *MockBlobRepository) ReplacePrefix(ctx context.Context, prefix string, blobs map[string][]byte) error {
	args := m.Called(ctx, prefix, blobs)
	return args.Error(0)
}
