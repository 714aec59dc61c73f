package services

import (
	"context"

	"transcripts/internal/ingest"
	"transcripts/internal/performance"
	"transcripts/pkg/models"
)

// IngestionService runs uploaded documents through normalization, grade
// extraction and persistence.
type IngestionService interface {
	// Process runs a single upload. Failures are reported in Result.Err.
	Process(ctx context.Context, task ingest.Task) ingest.Result

	// ProcessBatch runs uploads on a worker pool and returns results in task order.
	ProcessBatch(ctx context.Context, tasks []ingest.Task, workers int, progress ingest.ProgressFunc) []ingest.Result
}

// PerformanceService reads and writes a student's reconciled performance.
type PerformanceService interface {
	// Reconcile returns every expected period through yearOfStudy, filled
	// from persisted records or pending, with yearly averages and trend.
	Reconcile(ctx context.Context, studentID, institutionLabel string, yearOfStudy int) (*performance.Report, error)

	// Upsert records a grade signal, replacing any record with the same key.
	Upsert(ctx context.Context, studentID string, id models.PeriodIdentifier, signal models.GradeSignal, sourceDocumentID string) (models.PerformanceRecord, error)
}

var (
	_ IngestionService   = (*ingest.Service)(nil)
	_ PerformanceService = (*performance.Reconciler)(nil)
)
