package models

// QueryState is the transient search/sort/filter/page state of one view session.
// Every With* method is a pure transition: it returns a new state and leaves
// the receiver untouched.
type QueryState struct {
	SearchText  string          `json:"searchText"`
	SortMode    SortMode        `json:"sortMode"`
	Filters     AdvancedFilters `json:"filters"`
	CurrentPage int             `json:"currentPage"`
}

// DefaultQueryState returns the state a view session starts with.
func DefaultQueryState() QueryState {
	return QueryState{
		SearchText:  "",
		SortMode:    SortNone,
		Filters:     DefaultAdvancedFilters(),
		CurrentPage: 1,
	}
}

// WithSearchText sets the search term and goes back to the first page.
func (q QueryState) WithSearchText(term string) QueryState {
	q.SearchText = term
	q.CurrentPage = 1
	return q
}

// WithSortMode sets the sort mode and goes back to the first page.
func (q QueryState) WithSortMode(mode SortMode) QueryState {
	q.SortMode = mode
	q.CurrentPage = 1
	return q
}

// WithFilters replaces the advanced filters and goes back to the first page.
func (q QueryState) WithFilters(filters AdvancedFilters) QueryState {
	q.Filters = filters.normalized()
	q.CurrentPage = 1
	return q
}

// WithPage moves to page, clamped to [1, totalPages].
func (q QueryState) WithPage(page, totalPages int) QueryState {
	q.CurrentPage = ClampPage(page, totalPages)
	return q
}

// WithDefaultFilters restores ages 18..80, clears the company and city
// selections and goes back to the first page. Search text and sort mode are kept.
func (q QueryState) WithDefaultFilters() QueryState {
	q.Filters = DefaultAdvancedFilters()
	q.CurrentPage = 1
	return q
}

// ClampPage clamps page into [1, max(1, totalPages)].
func ClampPage(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}

	return page
}

func (f AdvancedFilters) normalized() AdvancedFilters {
	minAge, maxAge := f.AgeRange[0], f.AgeRange[1]
	if minAge > maxAge {
		minAge, maxAge = maxAge, minAge
	}
	result := AdvancedFilters{
		AgeRange:  [2]int{minAge, maxAge},
		Companies: append([]string{}, f.Companies...),
		Cities:    append([]string{}, f.Cities...),
	}

	return result
}
