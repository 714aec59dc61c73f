package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"transcripts/internal/logger"
)

// DocumentAIConfig holds configuration for a Document AI OCR processor.
type DocumentAIConfig struct {
	// ProjectID is the Google Cloud project ID where Document AI is enabled.
	ProjectID string

	// Location is the processing location (e.g., "us", "eu").
	// Should match where the processor was created.
	Location string

	// ProcessorID is the ID of an OCR processor (type OCR_PROCESSOR).
	ProcessorID string

	// ProcessorVersion pins a processor version. Empty uses the default version.
	ProcessorVersion string
}

// documentAIClient is the subset of *documentai.DocumentProcessorClient used here.
type documentAIClient interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// DocumentAIEngine implements Engine using a Google Document AI OCR processor.
type DocumentAIEngine struct {
	client documentAIClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIEngine creates a Document AI engine with credentials from the environment.
func NewDocumentAIEngine(ctx context.Context, config DocumentAIConfig) (*DocumentAIEngine, error) {
	const op = "NewDocumentAIEngine"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "project ID and processor ID are required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	clientOptions := credentialOptions()
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return NewDocumentAIEngineWithClient(config, client), nil
}

// NewDocumentAIEngineWithClient creates an engine with an explicit client (for testing).
func NewDocumentAIEngineWithClient(config DocumentAIConfig, client documentAIClient) *DocumentAIEngine {
	return &DocumentAIEngine{
		client: client,
		config: config,
		log:    logger.WithComponent("ocr-documentai"),
	}
}

// Name implements Engine.
func (d *DocumentAIEngine) Name() string {
	return "documentai"
}

// ProcessorName returns the fully qualified processor resource name.
func (d *DocumentAIEngine) ProcessorName() string {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		d.config.ProjectID, d.config.Location, d.config.ProcessorID)
	if d.config.ProcessorVersion != "" {
		name += "/processorVersions/" + d.config.ProcessorVersion
	}
	return name
}

// Recognize implements Engine.
func (d *DocumentAIEngine) Recognize(ctx context.Context, data []byte, mimeType string) (*OCRResult, error) {
	const op = "Recognize"
	startTime := time.Now()

	if err := checkInput(op, data, mimeType); err != nil {
		return nil, err
	}

	req := &documentaipb.ProcessRequest{
		Name: d.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
	}

	resp, err := d.client.ProcessDocument(ctx, req, noRetry())
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Document AI error: %v", err))
	}
	if resp.Document == nil {
		return nil, WrapOCRError(op, ErrOCRFailed, "no document in response")
	}

	doc := resp.Document
	if strings.TrimSpace(doc.Text) == "" {
		return nil, WrapOCRError(op, ErrEmptyDocument, "")
	}

	var confidenceSum float32
	var confidenceCount int
	for _, page := range doc.Pages {
		if page.Layout != nil && page.Layout.Confidence > 0 {
			confidenceSum += page.Layout.Confidence
			confidenceCount++
		}
	}

	result := &OCRResult{
		Text:      doc.Text,
		PageCount: len(doc.Pages),
	}
	if confidenceCount > 0 {
		result.Confidence = confidenceSum / float32(confidenceCount)
	}
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	d.log.Debug().
		Str("processor", d.config.ProcessorID).
		Str("mime_type", mimeType).
		Int("pages", result.PageCount).
		Dur("duration", result.ProcessingDuration).
		Msg("Document AI OCR completed")

	return result, nil
}

// Close closes the underlying Document AI client.
func (d *DocumentAIEngine) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
