// Package service composes the view state controller, the favorites store,
// the record snapshot cache and the remote record source into the operations
// the presentation adapters (HTTP router, terminal client) call.
package service

import (
	"context"
	"fmt"

	"github.com/patric-chuzhbe/userdir/internal/models"
)

type viewController interface {
	Load(ctx context.Context) error
	Retry(ctx context.Context) error
	SetSearchText(term string)
	SetSortMode(mode models.SortMode)
	SetAdvancedFilters(filters models.AdvancedFilters)
	ResetFilters()
	SetCurrentPage(page int)
	Snapshot(ctx context.Context) models.ViewSnapshot
	Records() []models.UserRecord
}

type favoritesStore interface {
	Load(ctx context.Context) models.FavoriteSet
	Toggle(ctx context.Context, id int) (models.FavoriteSet, error)
	Subscribe() (string, <-chan models.FavoritesEvent, func())
}

type recordResolver interface {
	Resolve(ctx context.Context, ids models.FavoriteSet) []models.UserRecord
}

type detailsFetcher interface {
	FetchByID(ctx context.Context, id int) (models.UserRecord, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	view      viewController
	favorites favoritesStore
	cache     recordResolver
	details   detailsFetcher
	db        pinger
}

func New(
	view viewController,
	favorites favoritesStore,
	cache recordResolver,
	details detailsFetcher,
	db pinger,
) *Service {
	return &Service{
		view:      view,
		favorites: favorites,
		cache:     cache,
		details:   details,
		db:        db,
	}
}

// Load performs the initial fetch of the list view.
func (s *Service) Load(ctx context.Context) error {
	return s.view.Load(ctx)
}

// View returns the current list view.
func (s *Service) View(ctx context.Context) models.ViewSnapshot {
	return s.view.Snapshot(ctx)
}

func (s *Service) Search(ctx context.Context, term string) models.ViewSnapshot {
	s.view.SetSearchText(term)
	return s.view.Snapshot(ctx)
}

// Sort accepts "none", "name" or "age" (case insensitive).
func (s *Service) Sort(ctx context.Context, rawMode string) (models.ViewSnapshot, error) {
	mode, err := models.ParseSortMode(rawMode)
	if err != nil {
		return models.ViewSnapshot{}, err
	}

	s.view.SetSortMode(mode)

	return s.view.Snapshot(ctx), nil
}

func (s *Service) Filter(ctx context.Context, filters models.AdvancedFilters) models.ViewSnapshot {
	s.view.SetAdvancedFilters(filters)
	return s.view.Snapshot(ctx)
}

func (s *Service) ResetFilters(ctx context.Context) models.ViewSnapshot {
	s.view.ResetFilters()
	return s.view.Snapshot(ctx)
}

func (s *Service) GoToPage(ctx context.Context, page int) models.ViewSnapshot {
	s.view.SetCurrentPage(page)
	return s.view.Snapshot(ctx)
}

// Retry re-runs the fetch. The returned snapshot reflects the outcome even
// when the error is non-nil.
func (s *Service) Retry(ctx context.Context) (models.ViewSnapshot, error) {
	err := s.view.Retry(ctx)
	return s.view.Snapshot(ctx), err
}

// UserDetail fetches one record from the remote collection. A
// *models.NotFoundError is returned unwrapped so callers can redirect.
func (s *Service) UserDetail(ctx context.Context, id int) (models.UserRecord, error) {
	if id < 1 {
		return models.UserRecord{}, &models.NotFoundError{ID: id}
	}

	return s.details.FetchByID(ctx, id)
}

// ToggleFavorite flips id in the favorite set and returns the resulting set.
func (s *Service) ToggleFavorite(ctx context.Context, id int) (models.FavoriteSet, error) {
	favorites, err := s.favorites.Toggle(ctx, id)
	if err != nil {
		return favorites, fmt.Errorf("in internal/service/service.go/ToggleFavorite(): error while `s.favorites.Toggle()` calling: %w", err)
	}

	return favorites, nil
}

func (s *Service) Favorites(ctx context.Context) models.FavoriteSet {
	return s.favorites.Load(ctx)
}

// SubscribeFavorites registers a listener for favorite-set changes made by
// any view; the returned function unregisters it.
func (s *Service) SubscribeFavorites() (string, <-chan models.FavoritesEvent, func()) {
	return s.favorites.Subscribe()
}

// FavoriteUsers resolves the favorite ids to records, preferring the records
// the list view currently holds and falling back to the snapshot cache.
// Ids known to neither are skipped.
func (s *Service) FavoriteUsers(ctx context.Context) []models.UserRecord {
	favorites := s.favorites.Load(ctx)

	loaded := map[int]models.UserRecord{}
	for _, record := range s.view.Records() {
		loaded[record.ID] = record
	}

	var missing models.FavoriteSet
	for _, id := range favorites {
		if _, ok := loaded[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		for _, record := range s.cache.Resolve(ctx, missing) {
			loaded[record.ID] = record
		}
	}

	result := make([]models.UserRecord, 0, len(favorites))
	for _, id := range favorites {
		if record, ok := loaded[id]; ok {
			result = append(result, record)
		}
	}

	return result
}

func (s *Service) Stats(ctx context.Context) models.InternalStatsResponse {
	return models.InternalStatsResponse{
		Records:   len(s.view.Records()),
		Favorites: len(s.favorites.Load(ctx)),
	}
}

// Ping checks the health of the storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
