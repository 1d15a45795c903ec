// Package mockstorage provides a testify-based mock implementation
// of the key-value storage interface. It is used for unit testing the
// favorites store and the record cache by simulating storage behavior,
// including failures a real backend rarely produces on demand.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// StorageMock is a testify mock that implements storage.Storage.
type StorageMock struct {
	mock.Mock
}

// Get mocks reading a value.
func (m *StorageMock) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	value, _ := args.Get(0).([]byte)
	return value, args.Bool(1), args.Error(2)
}

// Set mocks writing a value.
func (m *StorageMock) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// Ping mocks the health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks releasing the backend.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
