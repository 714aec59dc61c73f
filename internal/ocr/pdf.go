package ocr

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/googleapis/gax-go/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"google.golang.org/api/option"
)

const (
	// MaxFileSizeBytes is the maximum document size for synchronous processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the maximum number of pages Vision reads synchronously
	MaxPagesSync = 5
)

func init() {
	// pdfcpu would otherwise create a config directory under $HOME on first use.
	api.DisableConfigDir()
}

// PDFPageCount returns the number of pages of a PDF using relaxed validation.
func PDFPageCount(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}

// IsPDF reports whether data starts with a PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF"))
}

// noRetry disables the generated clients' default retry policy.
func noRetry() gax.CallOption {
	return gax.WithRetry(func() gax.Retryer {
		return gax.OnCodes(nil, gax.Backoff{})
	})
}

// credentialOptions mirrors the credential lookup order used across the CLI:
// inline JSON first, then a credentials file, then application defaults.
func credentialOptions() []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}

func checkInput(op string, data []byte, mimeType string) error {
	if len(data) > MaxFileSizeBytes {
		return WrapOCRError(op, ErrDocumentTooLarge, fmt.Sprintf("file size: %d bytes", len(data)))
	}
	if mimeType == "application/pdf" && !IsPDF(data) {
		return WrapOCRError(op, ErrInvalidPDF, "missing PDF header")
	}
	if mimeType != "application/pdf" && !strings.HasPrefix(mimeType, "image/") {
		return WrapOCRError(op, ErrUnsupportedFormat, mimeType)
	}
	return nil
}
