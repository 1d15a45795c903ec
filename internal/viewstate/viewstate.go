// Package viewstate owns the mutable state of the list view: the fetched
// records, the query state and the load lifecycle
// (idle -> loading -> ready | failed, failed -> loading on retry).
//
// Every setter applies a pure QueryState transition and recomputes the
// derived page synchronously. Fetches run outside the lock and carry a
// generation number; only the latest fetch may apply its result.
package viewstate

import (
	"context"
	"errors"
	"slices"
	"sync"

	"golang.org/x/text/language"

	"github.com/patric-chuzhbe/userdir/internal/logger"
	"github.com/patric-chuzhbe/userdir/internal/models"
	"github.com/patric-chuzhbe/userdir/internal/query"
)

// ErrSuperseded is returned by Load when a newer fetch started before this
// one completed; its result has been discarded.
var ErrSuperseded = errors.New("fetch superseded by a newer request")

const (
	DefaultPageSize   = 10
	DefaultFetchLimit = 30
)

type recordSource interface {
	FetchPage(ctx context.Context, limit, offset int) ([]models.UserRecord, error)
}

type favoritesLoader interface {
	Load(ctx context.Context) models.FavoriteSet
}

type snapshotSaver interface {
	Save(ctx context.Context, records []models.UserRecord) error
}

type Controller struct {
	source    recordSource
	favorites favoritesLoader
	cache     snapshotSaver

	pageSize   int
	fetchLimit int
	locale     language.Tag

	mu         sync.Mutex
	status     models.ViewStatus
	records    []models.UserRecord
	query      models.QueryState
	lastErr    error
	generation uint64
	derived    query.Result
	facets     models.Facets
}

type InitOption func(*initOptions)

type initOptions struct {
	pageSize   int
	fetchLimit int
	locale     language.Tag
	cache      snapshotSaver
}

// WithPageSize sets the number of records per page.
func WithPageSize(pageSize int) InitOption {
	return func(options *initOptions) {
		options.pageSize = pageSize
	}
}

// WithFetchLimit sets how many records a load requests.
func WithFetchLimit(limit int) InitOption {
	return func(options *initOptions) {
		options.fetchLimit = limit
	}
}

// WithLocale sets the collation used by the name sort.
func WithLocale(locale language.Tag) InitOption {
	return func(options *initOptions) {
		options.locale = locale
	}
}

// WithRecordCache makes every successful load refresh the record snapshot cache.
func WithRecordCache(cache snapshotSaver) InitOption {
	return func(options *initOptions) {
		options.cache = cache
	}
}

func New(source recordSource, favorites favoritesLoader, optionsProto ...InitOption) *Controller {
	options := &initOptions{
		pageSize:   DefaultPageSize,
		fetchLimit: DefaultFetchLimit,
		locale:     language.English,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}
	if options.pageSize < 1 {
		options.pageSize = DefaultPageSize
	}
	if options.fetchLimit < 1 {
		options.fetchLimit = DefaultFetchLimit
	}

	c := &Controller{
		source:     source,
		favorites:  favorites,
		cache:      options.cache,
		pageSize:   options.pageSize,
		fetchLimit: options.fetchLimit,
		locale:     options.locale,
		status:     models.StatusIdle,
		records:    []models.UserRecord{},
		query:      models.DefaultQueryState(),
	}
	c.recompute()

	return c
}

// Load fetches a fresh record set. Entering the loading state clears any
// previous error. On success the record set is replaced as a whole and the
// view goes back to the first page.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	generation := c.generation
	c.status = models.StatusLoading
	c.lastErr = nil
	c.mu.Unlock()

	records, err := c.source.FetchPage(ctx, c.fetchLimit, 0)

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		logger.Log.Debugw("discarding stale fetch result", "generation", generation, "latest", c.generation)
		return ErrSuperseded
	}

	if err != nil {
		c.status = models.StatusFailed
		c.lastErr = err
		logger.Log.Warnw("API failed, view is in failed state", "error", err)
		return err
	}

	c.records = slices.Clone(records)
	c.query.CurrentPage = 1
	c.status = models.StatusReady
	c.recompute()

	if c.cache != nil {
		if err := c.cache.Save(ctx, c.records); err != nil {
			logger.Log.Warnw("unable to refresh records cache", "error", err)
		}
	}

	return nil
}

// Retry re-runs the fetch after a failure.
func (c *Controller) Retry(ctx context.Context) error {
	return c.Load(ctx)
}

// SetSearchText updates the search term and goes back to page 1.
func (c *Controller) SetSearchText(term string) {
	c.apply(func(q models.QueryState) models.QueryState {
		return q.WithSearchText(term)
	})
}

// SetSortMode updates the sort mode and goes back to page 1.
func (c *Controller) SetSortMode(mode models.SortMode) {
	c.apply(func(q models.QueryState) models.QueryState {
		return q.WithSortMode(mode)
	})
}

// SetAdvancedFilters replaces the advanced filters and goes back to page 1.
func (c *Controller) SetAdvancedFilters(filters models.AdvancedFilters) {
	c.apply(func(q models.QueryState) models.QueryState {
		return q.WithFilters(filters)
	})
}

// ResetFilters restores the default advanced filters and goes back to page 1.
func (c *Controller) ResetFilters() {
	c.apply(func(q models.QueryState) models.QueryState {
		return q.WithDefaultFilters()
	})
}

// SetCurrentPage moves to page, silently clamped to [1, totalPages].
func (c *Controller) SetCurrentPage(page int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.query = c.query.WithPage(page, c.derived.TotalPages)
	c.recompute()
}

// NextPage and PreviousPage step through the pages, stopping at the ends.
func (c *Controller) NextPage() {
	c.step(1)
}

func (c *Controller) PreviousPage() {
	c.step(-1)
}

func (c *Controller) step(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.query = c.query.WithPage(c.query.CurrentPage+delta, c.derived.TotalPages)
	c.recompute()
}

// Snapshot returns the presentation contract for the current state. While a
// load is in flight the page is empty and counts as a single page of zero
// records; results appear once it resolves.
func (c *Controller) Snapshot(ctx context.Context) models.ViewSnapshot {
	favorites := c.favorites.Load(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := models.ViewSnapshot{
		Status:        c.status,
		Records:       []models.UserRecord{},
		TotalFiltered: len(c.derived.Filtered),
		TotalPages:    c.derived.TotalPages,
		Loading:       c.status == models.StatusLoading,
		Query:         c.query,
		Favorites:     favorites,
		Facets:        c.facets,
	}
	if c.lastErr != nil {
		snapshot.Error = c.lastErr.Error()
	}
	if snapshot.Loading {
		snapshot.TotalFiltered = 0
		snapshot.TotalPages = 1
	} else {
		snapshot.Records = slices.Clone(c.derived.Page)
	}

	return snapshot
}

// Status returns the lifecycle state.
func (c *Controller) Status() models.ViewStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

// Err returns the error of the last failed load, nil otherwise.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// Records returns a copy of the whole fetched record set.
func (c *Controller) Records() []models.UserRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.records)
}

// Query returns the current query state.
func (c *Controller) Query() models.QueryState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.query
}

func (c *Controller) apply(transition func(models.QueryState) models.QueryState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.query = transition(c.query)
	c.recompute()
}

// recompute must be called with mu held.
func (c *Controller) recompute() {
	c.derived = query.Apply(c.records, c.query, c.pageSize, c.locale)
	c.query.CurrentPage = c.derived.CurrentPage
	c.facets = query.Facets(c.records)
}
