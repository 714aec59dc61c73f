// Package document turns uploaded student documents into plain text.
//
// Normalize never fails: a corrupt or unreadable upload yields an empty
// string, which downstream grade extraction treats as "no grade found".
package document

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"transcripts/internal/grade"
	"transcripts/internal/logger"
	"transcripts/internal/ocr"
)

// MinTextLayerChars is the shortest PDF text layer, after whitespace
// normalization, that is accepted without falling back to OCR.
const MinTextLayerChars = 20

// TextLayerFunc extracts the embedded text of a PDF.
type TextLayerFunc func(data []byte) (string, error)

// Outcome reports how a document was normalized.
type Outcome struct {
	Text    string
	Format  Format
	OCRUsed bool
	// OCRErr is set when the OCR call was made and failed.
	OCRErr      error
	OCRDuration time.Duration
}

// Normalizer extracts text from PDFs, Word documents, images and plain text.
type Normalizer struct {
	engine    ocr.Engine
	textLayer TextLayerFunc
	logger    zerolog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithTextLayer replaces the PDF text layer extractor.
func WithTextLayer(fn TextLayerFunc) Option {
	return func(n *Normalizer) {
		if fn != nil {
			n.textLayer = fn
		}
	}
}

// NewNormalizer creates a Normalizer. engine may be nil, in which case scanned
// documents and images normalize to "".
func NewNormalizer(engine ocr.Engine, opts ...Option) *Normalizer {
	n := &Normalizer{
		engine:    engine,
		textLayer: PDFTextLayer,
		logger:    logger.WithComponent("normalizer"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns the text content of data, or "" when nothing could be
// read.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, h Hints) string {
	return n.NormalizeDetailed(ctx, data, h).Text
}

// NormalizeDetailed is Normalize with the chosen format and OCR usage.
func (n *Normalizer) NormalizeDetailed(ctx context.Context, data []byte, h Hints) (out Outcome) {
	const op = "Normalize"

	format, mediaType := detect(h, data)
	out.Format = format
	log := n.logger.With().
		Str("format", string(format)).
		Str("filename", h.Filename).
		Int("bytes", len(data)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("op", op).Interface("panic", r).Msg("Document normalization panicked")
			out.Text = ""
		}
	}()

	if len(data) == 0 {
		log.Warn().Str("op", op).Msg("Empty document")
		return out
	}

	switch format {
	case FormatPDF:
		n.normalizePDF(ctx, data, &out, log)
	case FormatDOCX:
		text, err := DOCXText(data)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read DOCX document")
			return out
		}
		out.Text = text
	case FormatDOC:
		text, err := DOCText(data)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read DOC document")
			return out
		}
		out.Text = text
	case FormatImage:
		if mediaType == "" || !strings.HasPrefix(mediaType, "image/") {
			mediaType = "image/jpeg"
		}
		n.recognize(ctx, data, mediaType, &out, log)
	default:
		out.Text = decodeText(data)
	}

	log.Debug().
		Str("op", op).
		Bool("ocr", out.OCRUsed).
		Int("chars", len(out.Text)).
		Msg("Document normalized")
	return out
}

func (n *Normalizer) normalizePDF(ctx context.Context, data []byte, out *Outcome, log zerolog.Logger) {
	text, err := n.safeTextLayer(data)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read PDF text layer, treating as scanned")
		text = ""
	}

	normalized := grade.NormalizeWhitespace(text)
	if utf8.RuneCountInString(normalized) >= MinTextLayerChars {
		out.Text = text
		return
	}

	if pages, err := ocr.PDFPageCount(data); err == nil {
		log = log.With().Int("pages", pages).Logger()
		if pages > ocr.MaxPagesSync {
			log.Warn().Int("max_pages", ocr.MaxPagesSync).Msg("Scanned PDF exceeds synchronous OCR page limit, only the first pages are read")
		}
	}
	log.Info().Int("text_layer_chars", len(normalized)).Msg("PDF text layer too short, falling back to OCR")
	n.recognize(ctx, data, "application/pdf", out, log)
}

func (n *Normalizer) safeTextLayer(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf text layer: panic: %v", r)
		}
	}()
	return n.textLayer(data)
}

// recognize makes the single OCR call for a document.
func (n *Normalizer) recognize(ctx context.Context, data []byte, mediaType string, out *Outcome, log zerolog.Logger) {
	if n.engine == nil {
		log.Warn().Msg("No OCR engine configured, scanned content is skipped")
		return
	}

	out.OCRUsed = true
	start := time.Now()
	result, err := n.safeRecognize(ctx, data, mediaType)
	out.OCRDuration = time.Since(start)
	if err != nil {
		out.OCRErr = err
		log.Error().
			Err(err).
			Str("engine", n.engine.Name()).
			Dur("duration", out.OCRDuration).
			Msg("OCR failed")
		return
	}
	if result == nil {
		return
	}

	log.Info().
		Str("engine", n.engine.Name()).
		Int("pages", result.PageCount).
		Float32("confidence", result.Confidence).
		Dur("duration", out.OCRDuration).
		Msg("OCR completed")
	out.Text = result.Text
}

func (n *Normalizer) safeRecognize(ctx context.Context, data []byte, mediaType string) (result *ocr.OCRResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ocr.ErrOCRFailed, r)
		}
	}()
	return n.engine.Recognize(ctx, data, mediaType)
}

// decodeText reads data as UTF-8, replacing invalid sequences.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}
