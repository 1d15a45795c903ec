// Package query is the filter/sort/paginate pipeline applied to the fetched
// records before they reach a view.
//
// The stages are exposed separately. Callers compose them in exactly this
// order for reproducible results: FilterByText, then FilterByAdvanced, then
// Sort, then Paginate. Apply does that composition.
package query

import (
	"slices"
	"sort"
	"strings"

	"github.com/thoas/go-funk"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/patric-chuzhbe/userdir/internal/models"
)

// FilterByText keeps records whose first name, last name, email or username
// contains term, ignoring case. A blank term returns records itself.
func FilterByText(records []models.UserRecord, term string) []models.UserRecord {
	if strings.TrimSpace(term) == "" {
		return records
	}

	needle := strings.ToLower(term)
	result := make([]models.UserRecord, 0, len(records))
	for _, record := range records {
		if matchesText(record, needle) {
			result = append(result, record)
		}
	}

	return result
}

func matchesText(record models.UserRecord, needle string) bool {
	for _, field := range []string{record.FirstName, record.LastName, record.Email, record.Username} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}

	return false
}

// FilterByAdvanced keeps records whose age is within the inclusive range,
// whose company is selected (or no company is selected) and whose city is
// selected (or no city is selected).
func FilterByAdvanced(records []models.UserRecord, filters models.AdvancedFilters) []models.UserRecord {
	companies := toSet(filters.Companies)
	cities := toSet(filters.Cities)
	minAge, maxAge := filters.AgeRange[0], filters.AgeRange[1]

	result := make([]models.UserRecord, 0, len(records))
	for _, record := range records {
		if record.Age < minAge || record.Age > maxAge {
			continue
		}
		if len(companies) > 0 && !companies[record.Company.Name] {
			continue
		}
		if len(cities) > 0 && !cities[record.Address.City] {
			continue
		}
		result = append(result, record)
	}

	return result
}

// Sort returns a newly ordered slice; records is never modified.
// Names are compared with the collation rules of locale. Both orderings are
// stable, so ties keep their input order.
func Sort(records []models.UserRecord, mode models.SortMode, locale language.Tag) []models.UserRecord {
	sorted := slices.Clone(records)
	if sorted == nil {
		sorted = []models.UserRecord{}
	}

	switch mode {
	case models.SortByName:
		collator := collate.New(locale)
		slices.SortStableFunc(sorted, func(a, b models.UserRecord) int {
			return collator.CompareString(a.FullName(), b.FullName())
		})
	case models.SortByAge:
		slices.SortStableFunc(sorted, func(a, b models.UserRecord) int {
			return a.Age - b.Age
		})
	}

	return sorted
}

// TotalPages returns ceil(count/pageSize), never less than 1.
func TotalPages(count, pageSize int) int {
	if pageSize < 1 || count <= 0 {
		return 1
	}

	return (count + pageSize - 1) / pageSize
}

// Paginate returns the records of page (clamped to the valid range).
func Paginate(records []models.UserRecord, page, pageSize int) []models.UserRecord {
	if pageSize < 1 {
		return []models.UserRecord{}
	}

	page = models.ClampPage(page, TotalPages(len(records), pageSize))
	start := (page - 1) * pageSize
	if start >= len(records) {
		return []models.UserRecord{}
	}
	end := min(start+pageSize, len(records))

	return slices.Clone(records[start:end])
}

// Result is the outcome of running the whole pipeline.
type Result struct {
	Filtered   []models.UserRecord
	Page       []models.UserRecord
	TotalPages int
	// CurrentPage is state.CurrentPage clamped to the filtered result.
	CurrentPage int
}

// Apply runs text filter, advanced filter, sort and pagination in that order.
func Apply(records []models.UserRecord, state models.QueryState, pageSize int, locale language.Tag) Result {
	filtered := FilterByText(records, state.SearchText)
	filtered = FilterByAdvanced(filtered, state.Filters)
	filtered = Sort(filtered, state.SortMode, locale)

	totalPages := TotalPages(len(filtered), pageSize)
	currentPage := models.ClampPage(state.CurrentPage, totalPages)

	return Result{
		Filtered:    filtered,
		Page:        Paginate(filtered, currentPage, pageSize),
		TotalPages:  totalPages,
		CurrentPage: currentPage,
	}
}

// Facets lists the distinct company names and cities present in records,
// each sorted ascending.
func Facets(records []models.UserRecord) models.Facets {
	companies := make([]string, 0, len(records))
	cities := make([]string, 0, len(records))
	for _, record := range records {
		if record.Company.Name != "" {
			companies = append(companies, record.Company.Name)
		}
		if record.Address.City != "" {
			cities = append(cities, record.Address.City)
		}
	}

	companies = funk.UniqString(companies)
	cities = funk.UniqString(cities)
	sort.Strings(companies)
	sort.Strings(cities)

	return models.Facets{
		Companies: companies,
		Cities:    cities,
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		set[value] = true
	}

	return set
}
