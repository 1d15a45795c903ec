// Package models holds the data types shared across the user directory:
// remote user records, query state, favorites and the view snapshot
// handed to the presentation layer.
package models

import (
	"fmt"
	"strings"
)

// Company is the employer block of a user record.
type Company struct {
	Name       string `json:"name"`
	Department string `json:"department"`
	Title      string `json:"title"`
}

// Address is the postal address block of a user record.
type Address struct {
	Street     string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
}

// UserRecord is a single user as returned by the remote collection.
// Records are never mutated locally; a refetch replaces them wholesale.
type UserRecord struct {
	ID         int     `json:"id"`
	FirstName  string  `json:"firstName"`
	LastName   string  `json:"lastName"`
	Email      string  `json:"email"`
	Username   string  `json:"username"`
	Age        int     `json:"age"`
	Phone      string  `json:"phone"`
	Image      string  `json:"image"`
	Height     float64 `json:"height"`
	Weight     float64 `json:"weight"`
	BirthDate  string  `json:"birthDate"`
	Gender     string  `json:"gender"`
	BloodGroup string  `json:"bloodGroup"`
	University string  `json:"university"`
	Company    Company `json:"company"`
	Address    Address `json:"address"`
}

// FullName returns "first last".
func (u UserRecord) FullName() string {
	return u.FirstName + " " + u.LastName
}

// UsersPage is the envelope of the remote list endpoint.
type UsersPage struct {
	Users []UserRecord `json:"users"`
	Total int          `json:"total"`
	Skip  int          `json:"skip"`
	Limit int          `json:"limit"`
}

// SortMode selects the ordering applied by the query pipeline.
type SortMode string

const (
	SortNone   SortMode = "none"
	SortByName SortMode = "name"
	SortByAge  SortMode = "age"
)

// ParseSortMode converts user input into a SortMode. An empty string maps to SortNone.
func ParseSortMode(raw string) (SortMode, error) {
	switch SortMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SortNone:
		return SortNone, nil
	case SortByName:
		return SortByName, nil
	case SortByAge:
		return SortByAge, nil
	}

	return SortNone, fmt.Errorf("%w: %q", ErrUnknownSortMode, raw)
}

const (
	DefaultMinAge = 18
	DefaultMaxAge = 80
)

// AdvancedFilters is the state of the filter panel.
type AdvancedFilters struct {
	AgeRange  [2]int   `json:"ageRange"`
	Companies []string `json:"companies"`
	Cities    []string `json:"cities"`
}

// DefaultAdvancedFilters returns the filter panel defaults: ages 18..80, nothing selected.
func DefaultAdvancedFilters() AdvancedFilters {
	return AdvancedFilters{
		AgeRange:  [2]int{DefaultMinAge, DefaultMaxAge},
		Companies: []string{},
		Cities:    []string{},
	}
}

// Facets lists the distinct companies and cities available for filtering.
type Facets struct {
	Companies []string `json:"companies"`
	Cities    []string `json:"cities"`
}

// FavoriteSet is a set of record ids kept in insertion order.
type FavoriteSet []int

// Contains reports whether id is a member of the set.
func (s FavoriteSet) Contains(id int) bool {
	for _, member := range s {
		if member == id {
			return true
		}
	}

	return false
}

// Toggled returns a new set with id removed if present, appended otherwise.
func (s FavoriteSet) Toggled(id int) FavoriteSet {
	result := make(FavoriteSet, 0, len(s)+1)
	found := false
	for _, member := range s {
		if member == id {
			found = true
			continue
		}
		result = append(result, member)
	}
	if !found {
		result = append(result, id)
	}

	return result
}

// FavoritesEvent is broadcast to subscribers whenever the favorite set changes.
type FavoritesEvent struct {
	Favorites FavoriteSet `json:"favorites"`
	// ToggledID is zero when the change came from a reload rather than a toggle.
	ToggledID int  `json:"toggledId,omitempty"`
	Added     bool `json:"added"`
}

// ViewStatus is the lifecycle state of the view state controller.
type ViewStatus string

const (
	StatusIdle    ViewStatus = "idle"
	StatusLoading ViewStatus = "loading"
	StatusReady   ViewStatus = "ready"
	StatusFailed  ViewStatus = "failed"
)

// ViewSnapshot is everything the presentation layer needs to render the list view.
type ViewSnapshot struct {
	Status        ViewStatus   `json:"status"`
	Records       []UserRecord `json:"records"`
	TotalFiltered int          `json:"totalFiltered"`
	TotalPages    int          `json:"totalPages"`
	Loading       bool         `json:"loading"`
	Error         string       `json:"error,omitempty"`
	Query         QueryState   `json:"query"`
	Favorites     FavoriteSet  `json:"favorites"`
	Facets        Facets       `json:"facets"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeRedis
	StorageTypeFile
	StorageTypeMemory
)

// Canonical storage keys. Both the favorites store and the favorites view
// read through these; there is exactly one name per concern.
const (
	FavoritesStorageKey    = "user-favorites"
	RecordsCacheStorageKey = "user-records-cache"
)

// InternalStatsResponse is returned by the trusted-subnet stats endpoint.
type InternalStatsResponse struct {
	Records   int `json:"records"`
	Favorites int `json:"favorites"`
}
