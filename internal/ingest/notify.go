package ingest

import (
	"context"

	"github.com/rs/zerolog"

	"transcripts/internal/logger"
	"transcripts/pkg/models"
)

// EventKind names a notification trigger.
type EventKind string

const (
	EventDocumentUploaded    EventKind = "document_uploaded"
	EventPerformanceComplete EventKind = "performance_complete"
)

// Event is handed to a Notifier after a task is processed.
type Event struct {
	Kind         EventKind
	Recipient    string
	StudentID    string
	DocumentID   string
	DocumentType string
	Period       models.PeriodIdentifier
	Status       models.Status
}

// Notifier delivers pipeline events. Delivery failures never fail a task.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotificationPolicy decides which events are sent. It is passed in
// explicitly rather than read from shared settings.
type NotificationPolicy struct {
	OnNewDocument bool
	OnComplete    bool
	Recipient     string
}

// events returns the events a processed task triggers under p.
func (p NotificationPolicy) events(task Task, rec *models.PerformanceRecord) []Event {
	base := Event{
		Recipient:    p.Recipient,
		StudentID:    task.StudentID,
		DocumentID:   task.DocumentID,
		DocumentType: task.DocumentType,
		Period: models.PeriodIdentifier{
			YearOfStudy:    task.YearOfStudy,
			AcademicPeriod: task.AcademicPeriod,
		},
	}

	var out []Event
	if p.OnNewDocument {
		e := base
		e.Kind = EventDocumentUploaded
		if rec != nil {
			e.Status = rec.Status
		}
		out = append(out, e)
	}
	if p.OnComplete && rec != nil && rec.Status == models.StatusComplete {
		e := base
		e.Kind = EventPerformanceComplete
		e.Status = rec.Status
		out = append(out, e)
	}
	return out
}

// LogNotifier writes events to the log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: logger.WithComponent("notifier")}
}

// Notify logs e at info level. It never fails.
func (n *LogNotifier) Notify(_ context.Context, e Event) error {
	log := logger.WithDocumentID(logger.WithStudentID(n.logger, e.StudentID), e.DocumentID)
	log.Info().
		Str("event", string(e.Kind)).
		Str("recipient", e.Recipient).
		Str("document_type", e.DocumentType).
		Int("year_of_study", e.Period.YearOfStudy).
		Str("academic_period", e.Period.AcademicPeriod).
		Str("status", string(e.Status)).
		Msg("Notification")
	return nil
}
