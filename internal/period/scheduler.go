// Package period defines the reporting-period taxonomy and the schedule of
// periods a student is expected to report on.
//
// This is the only place the taxonomy is defined; upload normalization,
// reconciliation and the CLI all read it from here.
package period

import (
	"strconv"
	"strings"

	"transcripts/pkg/models"
)

// Year-of-study bounds.
const (
	MinYear = 1
	MaxYear = 5
)

// Canonical period labels.
const (
	Semester1   = "Semester 1"
	Semester2   = "Semester 2"
	Semester3   = "Semester 3"
	Semester12  = "Semester 1&2"
	Semester123 = "Semester 1&2&3"
	Attachment  = "Attachment"
	Term1       = "Term 1"
	Term2       = "Term 2"
	Term3       = "Term 3"
)

// Taxonomy is the period vocabulary of one institution type.
type Taxonomy struct {
	// Expected periods appear in every scheduled year, in this order.
	Expected []string
	// Optional periods are accepted on upload but never expected.
	Optional []string
}

var taxonomies = map[models.InstitutionType]Taxonomy{
	models.InstitutionUniversity: {
		Expected: []string{Semester1, Semester2},
		Optional: []string{Semester3, Semester12, Semester123, Attachment},
	},
	models.InstitutionTVET: {
		Expected: []string{Term1, Term2, Term3},
	},
}

// TaxonomyFor returns the vocabulary of an institution type. Unknown types
// get the University taxonomy.
func TaxonomyFor(t models.InstitutionType) Taxonomy {
	if tax, ok := taxonomies[t]; ok {
		return tax
	}
	return taxonomies[models.InstitutionUniversity]
}

// Order returns the position of period in the taxonomy (expected first, then
// optional) and whether it belongs to it.
func (t Taxonomy) Order(period string) (int, bool) {
	for i, p := range t.Expected {
		if p == period {
			return i, true
		}
	}
	for i, p := range t.Optional {
		if p == period {
			return len(t.Expected) + i, true
		}
	}
	return 0, false
}

// Classify maps a free-text institution name or type onto an institution type.
// A case-insensitive "tvet" or "college" means TVET; anything else is a
// University.
//
// TODO: read the type from the institution record once registration persists
// it; a university named "... College" is classified as TVET here.
func Classify(label string) models.InstitutionType {
	l := strings.ToLower(label)
	if strings.Contains(l, "tvet") || strings.Contains(l, "college") {
		return models.InstitutionTVET
	}
	return models.InstitutionUniversity
}

// ClampYear bounds year to [MinYear, MaxYear].
func ClampYear(year int) int {
	if year < MinYear {
		return MinYear
	}
	if year > MaxYear {
		return MaxYear
	}
	return year
}

// ParseYearOfStudy parses a year of study and clamps it. Input that is not an
// integer yields MinYear.
func ParseYearOfStudy(s string) int {
	year, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return MinYear
	}
	return ClampYear(year)
}

// Schedule returns the expected periods of years 1..year for an institution type.
func Schedule(t models.InstitutionType, year int) []models.PeriodIdentifier {
	year = ClampYear(year)
	expected := TaxonomyFor(t).Expected

	periods := make([]models.PeriodIdentifier, 0, year*len(expected))
	for y := MinYear; y <= year; y++ {
		for _, p := range expected {
			periods = append(periods, models.PeriodIdentifier{YearOfStudy: y, AcademicPeriod: p})
		}
	}
	return periods
}

// ExpectedPeriods classifies institutionLabel and returns its schedule through year.
func ExpectedPeriods(institutionLabel string, year int) []models.PeriodIdentifier {
	return Schedule(Classify(institutionLabel), year)
}

// Valid reports whether period is in the vocabulary of t.
func Valid(t models.InstitutionType, period string) bool {
	_, ok := TaxonomyFor(t).Order(period)
	return ok
}
