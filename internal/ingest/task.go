package ingest

import (
	"time"

	"transcripts/internal/document"
	"transcripts/pkg/models"
)

// Task is one uploaded document to run through the pipeline.
type Task struct {
	// DocumentID identifies the upload; generated when empty.
	DocumentID string `json:"documentId,omitempty"`

	StudentID        string `json:"studentId"`
	InstitutionLabel string `json:"institution"`
	YearOfStudy      int    `json:"yearOfStudy"`
	AcademicPeriod   string `json:"academicPeriod"`

	// DocumentType defaults to models.DocumentTypeTranscript.
	DocumentType string `json:"documentType,omitempty"`

	// URL locates the document: http(s)://, file:// or a local path.
	URL string `json:"url"`

	// ContentType and Filename override what the blob store reports.
	ContentType string `json:"contentType,omitempty"`
	Filename    string `json:"filename,omitempty"`
}

// Result is the outcome of one task.
type Result struct {
	// Index is the position of the task in a batch.
	Index int `json:"index"`

	Task   Task                      `json:"task"`
	Record *models.PerformanceRecord `json:"record,omitempty"`

	// Rule is the grade rule that matched, empty when none did.
	Rule      string          `json:"rule,omitempty"`
	Format    document.Format `json:"format,omitempty"`
	OCRUsed   bool            `json:"ocrUsed"`
	TextChars int             `json:"textChars"`

	// Skipped is set for documents that carry no grades.
	Skipped bool `json:"skipped,omitempty"`

	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Status summarizes the result: error, skipped, pending or complete.
func (r Result) Status() string {
	switch {
	case r.Err != nil:
		return "error"
	case r.Skipped:
		return "skipped"
	case r.Record == nil:
		return "error"
	}
	return string(r.Record.Status)
}
