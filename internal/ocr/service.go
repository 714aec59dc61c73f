// Package ocr provides optical character recognition for scanned documents
// and images using Google Cloud.
//
// Two engines are available:
//   - VisionEngine: Cloud Vision DOCUMENT_TEXT_DETECTION. Images are sent
//     inline; PDFs and TIFFs go through the synchronous file API, which reads
//     at most MaxPagesSync pages.
//   - DocumentAIEngine: a Document AI OCR processor.
//
// Credentials come from GOOGLE_CREDENTIALS (inline JSON) or
// GOOGLE_APPLICATION_CREDENTIALS (file path), falling back to application
// default credentials.
//
// OCR is slow and billed per call. Engines issue exactly one RPC per
// Recognize call and disable the client library's automatic retries; callers
// bound the call with a context deadline.
package ocr

import (
	"context"
	"time"
)

// Engine extracts text from a scanned document or image.
type Engine interface {
	// Recognize returns the text of data. mimeType is the normalized media
	// type, e.g. "application/pdf" or "image/png".
	Recognize(ctx context.Context, data []byte, mimeType string) (*OCRResult, error)

	// Name identifies the engine in logs and metrics.
	Name() string

	// Close releases the underlying client.
	Close() error
}

// OCRResult contains the results of OCR processing with metadata.
type OCRResult struct {
	// Text is the extracted text content from all pages, concatenated in reading order.
	Text string `json:"text"`

	// PageCount is the number of pages that were processed.
	PageCount int `json:"page_count"`

	// Confidence is the average confidence score across detected pages (0.0 to 1.0).
	Confidence float32 `json:"confidence"`

	// ProcessedAt is the timestamp when the OCR processing completed.
	ProcessedAt time.Time `json:"processed_at"`

	// ProcessingDuration is how long the OCR processing took.
	ProcessingDuration time.Duration `json:"processing_duration"`
}
