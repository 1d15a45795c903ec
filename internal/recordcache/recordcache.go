// Package recordcache keeps a snapshot of the last successfully fetched
// records so that views which only hold ids (the favorites page) can
// resolve them without another round trip to the remote collection.
package recordcache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/patric-chuzhbe/userdir/internal/logger"
	"github.com/patric-chuzhbe/userdir/internal/models"
)

type keyValue interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

type Cache struct {
	db keyValue
}

func New(db keyValue) *Cache {
	return &Cache{db: db}
}

// Save replaces the snapshot with records.
func (c *Cache) Save(ctx context.Context, records []models.UserRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("in internal/recordcache/recordcache.go/Save(): error while `json.Marshal()` calling: %w", err)
	}

	if err := c.db.Set(ctx, models.RecordsCacheStorageKey, raw); err != nil {
		return fmt.Errorf("in internal/recordcache/recordcache.go/Save(): error while `c.db.Set()` calling: %w", err)
	}

	return nil
}

// Load returns the snapshot. Missing or corrupt data yields no records.
func (c *Cache) Load(ctx context.Context) []models.UserRecord {
	raw, found, err := c.db.Get(ctx, models.RecordsCacheStorageKey)
	if err != nil {
		logger.Log.Warnw("unable to read records cache", "error", err)
		return []models.UserRecord{}
	}
	if !found {
		return []models.UserRecord{}
	}

	var records []models.UserRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		decodeErr := &models.PersistenceDecodeError{Key: models.RecordsCacheStorageKey, Err: err}
		logger.Log.Debugw("records cache is corrupt, ignoring it", "error", decodeErr)
		return []models.UserRecord{}
	}
	if records == nil {
		return []models.UserRecord{}
	}

	return records
}

// Resolve returns the cached records for ids, in the order of ids. Ids that
// are not in the snapshot are skipped.
func (c *Cache) Resolve(ctx context.Context, ids models.FavoriteSet) []models.UserRecord {
	byID := map[int]models.UserRecord{}
	for _, record := range c.Load(ctx) {
		byID[record.ID] = record
	}

	result := make([]models.UserRecord, 0, len(ids))
	for _, id := range ids {
		if record, ok := byID[id]; ok {
			result = append(result, record)
		}
	}

	return result
}
