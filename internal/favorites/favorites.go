// Package favorites keeps the persisted set of favorite record ids.
//
// The set lives under a single canonical key as a JSON array of integers.
// Every toggle rewrites the whole set synchronously and then broadcasts the
// new set, so all views of the session converge on the same favorites.
package favorites

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/userdir/internal/logger"
	"github.com/patric-chuzhbe/userdir/internal/models"
)

type keyValue interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

type broadcaster interface {
	Publish(event models.FavoritesEvent)
	Subscribe() (string, <-chan models.FavoritesEvent, func())
}

// Store serializes every mutation of the favorite set.
type Store struct {
	mu   sync.Mutex
	db   keyValue
	bus  broadcaster
	last models.FavoriteSet
}

func New(ctx context.Context, db keyValue, bus broadcaster) *Store {
	s := &Store{
		db:  db,
		bus: bus,
	}
	s.last = s.read(ctx)

	return s
}

// Load returns the persisted set. A missing or corrupt value yields an empty set.
func (s *Store) Load(ctx context.Context) models.FavoriteSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.read(ctx))
}

// Contains reports whether id is currently a favorite.
func (s *Store) Contains(ctx context.Context, id int) bool {
	return s.Load(ctx).Contains(id)
}

// Toggle adds id when absent and removes it when present, persists the
// result and broadcasts it.
func (s *Store) Toggle(ctx context.Context, id int) (models.FavoriteSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.read(ctx)
	next := current.Toggled(id)

	if err := s.write(ctx, next); err != nil {
		return current, err
	}
	s.last = next

	s.bus.Publish(models.FavoritesEvent{
		Favorites: slices.Clone(next),
		ToggledID: id,
		Added:     next.Contains(id),
	})

	return slices.Clone(next), nil
}

// Reload re-reads storage and broadcasts when the set differs from the last
// one this store saw. It reports whether anything changed.
func (s *Store) Reload(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.read(ctx)
	if slices.Equal(current, s.last) {
		return false
	}
	s.last = current

	s.bus.Publish(models.FavoritesEvent{Favorites: slices.Clone(current)})

	return true
}

// Subscribe registers a listener for favorite-set changes.
func (s *Store) Subscribe() (string, <-chan models.FavoritesEvent, func()) {
	return s.bus.Subscribe()
}

func (s *Store) read(ctx context.Context) models.FavoriteSet {
	raw, found, err := s.db.Get(ctx, models.FavoritesStorageKey)
	if err != nil {
		logger.Log.Warnw("unable to read favorites, treating as empty", "error", err)
		return models.FavoriteSet{}
	}
	if !found {
		return models.FavoriteSet{}
	}

	ids, err := decode(raw)
	if err != nil {
		logger.Log.Debugw("favorites storage is corrupt, treating as empty", "error", err)
		return models.FavoriteSet{}
	}

	return ids
}

func (s *Store) write(ctx context.Context, set models.FavoriteSet) error {
	raw, err := json.Marshal([]int(set))
	if err != nil {
		return fmt.Errorf("in internal/favorites/favorites.go/write(): error while `json.Marshal()` calling: %w", err)
	}

	if err := s.db.Set(ctx, models.FavoritesStorageKey, raw); err != nil {
		return fmt.Errorf("in internal/favorites/favorites.go/write(): error while `s.db.Set()` calling: %w", err)
	}

	return nil
}

func decode(raw []byte) (models.FavoriteSet, error) {
	var ids []int
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, &models.PersistenceDecodeError{Key: models.FavoritesStorageKey, Err: err}
	}
	if ids == nil {
		return models.FavoriteSet{}, nil
	}

	return models.FavoriteSet(funk.UniqInt(ids)), nil
}
