package document

import (
	"bytes"
	"io"

	"github.com/ledongthuc/pdf"
)

// PDFTextLayer returns the embedded text of a digital PDF. Scanned PDFs
// return an empty string.
func PDFTextLayer(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
