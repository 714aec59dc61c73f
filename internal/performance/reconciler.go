// Package performance merges persisted grade records with the expected
// reporting schedule of a student and derives year-over-year trends.
package performance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"transcripts/internal/grade"
	"transcripts/internal/logger"
	"transcripts/internal/period"
	"transcripts/pkg/models"
)

// RecordStore is the persistence the reconciler reads and writes.
type RecordStore interface {
	Upsert(ctx context.Context, rec models.PerformanceRecord) (models.PerformanceRecord, error)
	FindByStudent(ctx context.Context, studentID string) ([]models.PerformanceRecord, error)
}

// Direction of the change between consecutive years.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionSame Direction = "same"
)

// Slot is one reporting period in a reconciled view: a persisted record or a
// pending placeholder.
type Slot struct {
	models.PerformanceRecord
	// Expected is false for optional periods that were reported anyway.
	Expected bool `json:"expected"`
	// Recorded is false for placeholders.
	Recorded bool `json:"recorded"`
}

// YearlyAggregate is the mean GPA of one year of study and its change from
// the previous year in the trend.
type YearlyAggregate struct {
	YearOfStudy int       `json:"yearOfStudy"`
	AverageGPA  float64   `json:"averageGpa"`
	Change      *float64  `json:"change,omitempty"`
	Direction   Direction `json:"direction,omitempty"`
}

// Report is the reconciled performance of a student.
type Report struct {
	StudentID   string                 `json:"studentId"`
	Institution models.InstitutionType `json:"institution"`
	YearOfStudy int                    `json:"yearOfStudy"`
	Periods     []Slot                 `json:"periods"`
	Years       []YearlyAggregate      `json:"years"`
}

// Reconciler builds performance reports and records new extractions.
type Reconciler struct {
	store  RecordStore
	logger zerolog.Logger
}

// NewReconciler creates a Reconciler over store.
func NewReconciler(store RecordStore) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger.WithComponent("reconciler"),
	}
}

// Reconcile returns every period studentID is expected to have reported on
// through yearOfStudy, with per-year averages and the trend between years.
func (r *Reconciler) Reconcile(ctx context.Context, studentID, institutionLabel string, yearOfStudy int) (*Report, error) {
	const op = "Reconcile"
	log := logger.WithStudentID(r.logger, studentID)

	if strings.TrimSpace(studentID) == "" {
		return nil, fmt.Errorf("%s: empty student id", op)
	}

	records, err := r.store.FindByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	institution := period.Classify(institutionLabel)
	year := period.ClampYear(yearOfStudy)
	slots := Merge(institution, year, records)

	if unmatched := len(records) - countRecorded(slots); unmatched > 0 {
		log.Debug().
			Int("unmatched", unmatched).
			Str("institution", string(institution)).
			Msg("Records outside the schedule were left out")
	}

	report := &Report{
		StudentID:   studentID,
		Institution: institution,
		YearOfStudy: year,
		Periods:     slots,
		Years:       Aggregate(slots),
	}

	log.Debug().
		Str("op", op).
		Int("slots", len(slots)).
		Int("records", len(records)).
		Int("years", len(report.Years)).
		Msg("Performance reconciled")
	return report, nil
}

// Upsert records signal for the period, replacing any earlier record with the
// same key.
func (r *Reconciler) Upsert(ctx context.Context, studentID string, id models.PeriodIdentifier, signal models.GradeSignal, sourceDocumentID string) (models.PerformanceRecord, error) {
	const op = "Upsert"

	rec := models.PerformanceRecord{
		StudentID:        studentID,
		PeriodIdentifier: id,
		GradeSignal:      signal,
		Status:           signal.Status(),
		SourceDocumentID: sourceDocumentID,
	}
	stored, err := r.store.Upsert(ctx, rec)
	if err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	log := logger.WithStudentID(r.logger, studentID)
	log.Info().
		Int("year_of_study", id.YearOfStudy).
		Str("academic_period", id.AcademicPeriod).
		Str("status", string(stored.Status)).
		Msg("Performance record saved")
	return stored, nil
}

// Merge lays records over the schedule of institution through year. Every
// expected period yields exactly one slot, a placeholder when nothing was
// recorded. Records for optional periods of a scheduled year follow that
// year's expected slots in taxonomy order. Records outside the schedule are
// dropped.
func Merge(institution models.InstitutionType, year int, records []models.PerformanceRecord) []Slot {
	taxonomy := period.TaxonomyFor(institution)

	byID := make(map[models.PeriodIdentifier]models.PerformanceRecord, len(records))
	for _, rec := range records {
		byID[rec.PeriodIdentifier] = rec
	}

	expected := period.Schedule(institution, year)
	slots := make([]Slot, 0, len(expected))
	for i, id := range expected {
		if rec, ok := byID[id]; ok {
			slots = append(slots, Slot{PerformanceRecord: rec, Expected: true, Recorded: true})
		} else {
			slots = append(slots, placeholder(id))
		}

		endOfYear := i == len(expected)-1 || expected[i+1].YearOfStudy != id.YearOfStudy
		if endOfYear {
			slots = append(slots, optionalSlots(taxonomy, id.YearOfStudy, byID)...)
		}
	}
	return slots
}

func placeholder(id models.PeriodIdentifier) Slot {
	return Slot{
		PerformanceRecord: models.PerformanceRecord{
			PeriodIdentifier: id,
			Status:           models.StatusPending,
		},
		Expected: true,
	}
}

func optionalSlots(taxonomy period.Taxonomy, year int, byID map[models.PeriodIdentifier]models.PerformanceRecord) []Slot {
	var out []Slot
	for _, p := range taxonomy.Optional {
		if rec, ok := byID[models.PeriodIdentifier{YearOfStudy: year, AcademicPeriod: p}]; ok {
			out = append(out, Slot{PerformanceRecord: rec, Recorded: true})
		}
	}
	return out
}

func countRecorded(slots []Slot) int {
	n := 0
	for _, s := range slots {
		if s.Recorded {
			n++
		}
	}
	return n
}

// Aggregate averages the GPA of each year that has at least one graded
// expected slot and computes the change from the previous such year.
// Optional periods are reported but do not count toward the average.
func Aggregate(slots []Slot) []YearlyAggregate {
	type acc struct {
		sum float64
		n   int
	}
	byYear := make(map[int]*acc)
	for _, s := range slots {
		if !s.Expected || s.GPA == nil {
			continue
		}
		a, ok := byYear[s.YearOfStudy]
		if !ok {
			a = &acc{}
			byYear[s.YearOfStudy] = a
		}
		a.sum += *s.GPA
		a.n++
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	out := make([]YearlyAggregate, 0, len(years))
	for i, y := range years {
		agg := YearlyAggregate{
			YearOfStudy: y,
			AverageGPA:  grade.Round2(byYear[y].sum / float64(byYear[y].n)),
		}
		if i > 0 {
			change := grade.Round2(agg.AverageGPA - out[i-1].AverageGPA)
			agg.Change = &change
			agg.Direction = direction(change)
		}
		out = append(out, agg)
	}
	return out
}

func direction(change float64) Direction {
	switch {
	case change > 0:
		return DirectionUp
	case change < 0:
		return DirectionDown
	}
	return DirectionSame
}

// Pending reports whether the slot has no grade yet.
func (s Slot) Pending() bool {
	return s.GPA == nil
}
