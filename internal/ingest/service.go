// Package ingest runs uploaded documents through the pipeline: fetch,
// normalize to text, extract a grade and record it for the student's period.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"transcripts/internal/blob"
	"transcripts/internal/document"
	"transcripts/internal/grade"
	"transcripts/internal/logger"
	"transcripts/internal/metrics"
	"transcripts/internal/period"
	"transcripts/pkg/models"
)

// Fetcher downloads a document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*blob.Object, error)
}

// Normalizer turns document bytes into text.
type Normalizer interface {
	NormalizeDetailed(ctx context.Context, data []byte, hints document.Hints) document.Outcome
}

// Recorder writes the extracted grade for a period.
type Recorder interface {
	Upsert(ctx context.Context, studentID string, id models.PeriodIdentifier, signal models.GradeSignal, sourceDocumentID string) (models.PerformanceRecord, error)
}

// Service processes ingestion tasks.
type Service struct {
	fetcher    Fetcher
	normalizer Normalizer
	recorder   Recorder
	metrics    *metrics.Manager
	notifier   Notifier
	policy     NotificationPolicy
	ocrTimeout time.Duration
	logger     zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records pipeline metrics on m.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNotifier sends events allowed by policy to n.
func WithNotifier(n Notifier, policy NotificationPolicy) Option {
	return func(s *Service) {
		s.notifier = n
		s.policy = policy
	}
}

// WithOCRTimeout bounds the normalization step, which may call OCR.
func WithOCRTimeout(d time.Duration) Option {
	return func(s *Service) { s.ocrTimeout = d }
}

// NewService creates an ingestion service.
func NewService(fetcher Fetcher, normalizer Normalizer, recorder Recorder, opts ...Option) *Service {
	s := &Service{
		fetcher:    fetcher,
		normalizer: normalizer,
		recorder:   recorder,
		logger:     logger.WithComponent("ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate normalizes the period label and document type of task and checks
// its key. The returned task is what Process records.
func Validate(task Task) (Task, error) {
	task.StudentID = strings.TrimSpace(task.StudentID)
	if task.StudentID == "" {
		return task, fmt.Errorf("%w: empty student id", ErrInvalidTask)
	}
	if task.YearOfStudy < period.MinYear || task.YearOfStudy > period.MaxYear {
		return task, fmt.Errorf("%w: year of study %d outside %d..%d", ErrInvalidTask, task.YearOfStudy, period.MinYear, period.MaxYear)
	}

	institution := period.Classify(task.InstitutionLabel)
	label := period.NormalizeLabel(task.AcademicPeriod)
	if !period.Valid(institution, label) {
		return task, fmt.Errorf("%w: period %q is not a %s period", ErrInvalidTask, task.AcademicPeriod, institution)
	}
	task.AcademicPeriod = label

	if strings.TrimSpace(task.DocumentType) == "" {
		task.DocumentType = models.DocumentTypeTranscript
	}
	if strings.TrimSpace(task.URL) == "" {
		return task, ErrNoDocument
	}
	return task, nil
}

// Process runs one task. Extraction problems never fail a task: unreadable
// documents are recorded as pending. Fetch and store failures are returned
// and nothing is recorded.
func (s *Service) Process(ctx context.Context, task Task) Result {
	start := time.Now()
	res := s.process(ctx, task)
	res.Duration = time.Since(start)

	s.metrics.RecordTask(res.Duration)
	if res.Err != nil {
		s.metrics.RecordError(StageOf(res.Err))
	}
	return res
}

func (s *Service) process(ctx context.Context, task Task) Result {
	if task.DocumentID == "" {
		task.DocumentID = uuid.NewString()
	}
	log := logger.WithDocumentID(logger.WithStudentID(s.logger, task.StudentID), task.DocumentID)

	task, err := Validate(task)
	res := Result{Task: task}
	if err != nil {
		log.Warn().Err(err).Msg("Rejected ingestion task")
		res.Err = wrapStage(metrics.StageValidate, err, task.DocumentID)
		return res
	}

	if task.DocumentType != models.DocumentTypeTranscript {
		log.Debug().Str("document_type", task.DocumentType).Msg("Document carries no grades, skipping extraction")
		res.Skipped = true
		s.notify(ctx, task, nil, log)
		return res
	}

	obj, err := s.fetcher.Fetch(ctx, task.URL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch document")
		res.Err = wrapStage(metrics.StageFetch, err, task.DocumentID)
		return res
	}

	hints := document.Hints{ContentType: obj.ContentType, Filename: obj.Filename}
	if task.ContentType != "" {
		hints.ContentType = task.ContentType
	}
	if task.Filename != "" {
		hints.Filename = task.Filename
	}

	outcome := s.normalize(ctx, obj.Data, hints)
	res.Format = outcome.Format
	res.OCRUsed = outcome.OCRUsed
	res.TextChars = len(outcome.Text)
	if outcome.OCRUsed {
		s.metrics.RecordOCR(outcome.OCRErr, outcome.OCRDuration)
	}

	match := grade.ExtractMatch(outcome.Text)
	res.Rule = match.Rule
	s.metrics.RecordExtraction(match.Rule)
	switch {
	case strings.TrimSpace(outcome.Text) == "":
		log.Warn().Str("format", string(outcome.Format)).Msg("No text recovered from document")
		s.metrics.RecordError(metrics.StageNormalize)
	case match.Rule == "":
		log.Warn().Msg("No grade found in transcript text")
		s.metrics.RecordError(metrics.StageExtract)
	}

	id := models.PeriodIdentifier{YearOfStudy: task.YearOfStudy, AcademicPeriod: task.AcademicPeriod}
	rec, err := s.recorder.Upsert(ctx, task.StudentID, id, match.Signal, task.DocumentID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to record performance")
		res.Err = wrapStage(metrics.StageStore, err, task.DocumentID)
		return res
	}
	res.Record = &rec
	s.metrics.RecordUpsert(string(rec.Status))
	s.metrics.RecordDocument(string(outcome.Format), string(rec.Status))

	log.Info().
		Str("format", string(outcome.Format)).
		Bool("ocr", outcome.OCRUsed).
		Str("rule", match.Rule).
		Str("status", string(rec.Status)).
		Int("year_of_study", id.YearOfStudy).
		Str("academic_period", id.AcademicPeriod).
		Msg("Transcript processed")

	s.notify(ctx, task, &rec, log)
	return res
}

func (s *Service) normalize(ctx context.Context, data []byte, hints document.Hints) document.Outcome {
	if s.ocrTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ocrTimeout)
		defer cancel()
	}
	return s.normalizer.NormalizeDetailed(ctx, data, hints)
}

func (s *Service) notify(ctx context.Context, task Task, rec *models.PerformanceRecord, log zerolog.Logger) {
	if s.notifier == nil {
		return
	}
	for _, event := range s.policy.events(task, rec) {
		if err := s.notifier.Notify(ctx, event); err != nil {
			log.Warn().Err(err).Str("event", string(event.Kind)).Msg("Failed to send notification")
		}
	}
}
