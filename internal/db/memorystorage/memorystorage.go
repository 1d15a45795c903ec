// Package memorystorage is the fallback storage used when neither a database,
// redis nor a file is configured. Nothing survives a restart.
package memorystorage

import (
	"context"

	"github.com/patric-chuzhbe/userdir/internal/db/jsondb"
)

type MemoryStorage struct {
	*jsondb.JSONDB
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		JSONDB: jsondb.NewInMemory(),
	}, nil
}

func (theStorage *MemoryStorage) Close() error {
	return nil
}

func (theStorage *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}
