// Package store persists performance records keyed by
// (student, year of study, academic period).
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"transcripts/pkg/models"
)

var (
	// ErrUnavailable wraps persistence backend failures.
	ErrUnavailable = errors.New("store unavailable")

	// ErrInvalidRecord is returned for records missing part of their key.
	ErrInvalidRecord = errors.New("invalid performance record")
)

// Store is the performance record persistence boundary.
type Store interface {
	// Upsert creates or replaces the record with the same key. CreatedAt is
	// preserved across replacements; UpdatedAt and Status are set by the
	// store. The stored record is returned.
	Upsert(ctx context.Context, rec models.PerformanceRecord) (models.PerformanceRecord, error)

	// FindByStudent returns every record of a student, ordered by year of
	// study and then academic period.
	FindByStudent(ctx context.Context, studentID string) ([]models.PerformanceRecord, error)

	// Close releases the backend.
	Close(ctx context.Context) error
}

func validate(rec models.PerformanceRecord) error {
	switch {
	case strings.TrimSpace(rec.StudentID) == "":
		return fmt.Errorf("%w: empty student id", ErrInvalidRecord)
	case rec.YearOfStudy <= 0:
		return fmt.Errorf("%w: year of study %d", ErrInvalidRecord, rec.YearOfStudy)
	case strings.TrimSpace(rec.AcademicPeriod) == "":
		return fmt.Errorf("%w: empty academic period", ErrInvalidRecord)
	}
	return nil
}
