package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"transcripts/pkg/models"
)

// Memory is a Store held in process memory. It backs dry runs and tests.
type Memory struct {
	mu      sync.RWMutex
	records map[models.RecordKey]models.PerformanceRecord
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[models.RecordKey]models.PerformanceRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upsert inserts rec or replaces the record with the same key, keeping its
// creation time.
func (m *Memory) Upsert(ctx context.Context, rec models.PerformanceRecord) (models.PerformanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.PerformanceRecord{}, err
	}
	if err := validate(rec); err != nil {
		return models.PerformanceRecord{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec.Status = rec.GradeSignal.Status()
	rec.UpdatedAt = now
	rec.CreatedAt = now
	if existing, ok := m.records[rec.Key()]; ok {
		rec.CreatedAt = existing.CreatedAt
	}
	m.records[rec.Key()] = rec
	return rec, nil
}

// FindByStudent returns the student's records sorted by year and period.
func (m *Memory) FindByStudent(ctx context.Context, studentID string) ([]models.PerformanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var out []models.PerformanceRecord
	for key, rec := range m.records {
		if key.StudentID == studentID {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].YearOfStudy != out[j].YearOfStudy {
			return out[i].YearOfStudy < out[j].YearOfStudy
		}
		return out[i].AcademicPeriod < out[j].AcademicPeriod
	})
	return out, nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op.
func (m *Memory) Close(context.Context) error { return nil }
