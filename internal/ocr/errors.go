package ocr

import (
	"errors"
	"fmt"
)

// Common OCR processing errors
var (
	// ErrDocumentTooLarge is returned when the document exceeds MaxFileSizeBytes.
	ErrDocumentTooLarge = errors.New("document size exceeds the maximum limit (20MB)")

	// ErrInvalidPDF is returned when a document declared as PDF has no PDF header.
	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")

	// ErrUnsupportedFormat is returned for media types the engine cannot read.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrOCRFailed is returned when the Google Cloud API fails to process the document.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned when no Google Cloud credentials can be found.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrInvalidConfiguration is returned when an engine is missing required settings.
	ErrInvalidConfiguration = errors.New("invalid OCR engine configuration")

	// ErrEmptyDocument is returned when OCR found no readable text.
	ErrEmptyDocument = errors.New("document contains no readable text")
)

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "Recognize", "NewVisionEngine").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return &OCRError{Op: op, Err: err, Details: details}
}
