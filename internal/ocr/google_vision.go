package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"

	"transcripts/internal/logger"
)

// visionClient is the subset of *vision.ImageAnnotatorClient used by VisionEngine.
type visionClient interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	BatchAnnotateFiles(ctx context.Context, req *visionpb.BatchAnnotateFilesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateFilesResponse, error)
	Close() error
}

// VisionEngine implements Engine using Google Cloud Vision API.
type VisionEngine struct {
	client visionClient
	log    zerolog.Logger
}

// NewVisionEngine creates a Vision engine with credentials from the environment.
func NewVisionEngine(ctx context.Context) (*VisionEngine, error) {
	const op = "NewVisionEngine"

	opts := credentialOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return NewVisionEngineWithClient(client), nil
}

// NewVisionEngineWithClient creates a Vision engine with an explicit client (for testing).
func NewVisionEngineWithClient(client visionClient) *VisionEngine {
	return &VisionEngine{
		client: client,
		log:    logger.WithComponent("ocr-vision"),
	}
}

// Name implements Engine.
func (v *VisionEngine) Name() string {
	return "vision"
}

// Recognize implements Engine.
func (v *VisionEngine) Recognize(ctx context.Context, data []byte, mimeType string) (*OCRResult, error) {
	const op = "Recognize"
	startTime := time.Now()

	if err := checkInput(op, data, mimeType); err != nil {
		return nil, err
	}

	var (
		result *OCRResult
		err    error
	)
	switch mimeType {
	case "application/pdf", "image/tiff", "image/gif":
		result, err = v.recognizeFile(ctx, data, mimeType)
	default:
		result, err = v.recognizeImage(ctx, data)
	}
	if err != nil {
		return nil, WrapOCRError(op, err, mimeType)
	}

	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	v.log.Debug().
		Str("mime_type", mimeType).
		Int("pages", result.PageCount).
		Float32("confidence", result.Confidence).
		Dur("duration", result.ProcessingDuration).
		Int("text_length", len(result.Text)).
		Msg("Vision OCR completed")

	return result, nil
}

func (v *VisionEngine) recognizeImage(ctx context.Context, data []byte) (*OCRResult, error) {
	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image:    &visionpb.Image{Content: data},
				Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req, noRetry())
	if err != nil {
		return nil, fmt.Errorf("%w: Vision API call failed: %v", ErrOCRFailed, err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("%w: no response from Vision API", ErrOCRFailed)
	}

	return collectPages(resp.Responses)
}

func (v *VisionEngine) recognizeFile(ctx context.Context, data []byte, mimeType string) (*OCRResult, error) {
	pages := []int32{}
	if mimeType == "application/pdf" {
		count, err := PDFPageCount(data)
		if err != nil {
			// Vision still reads the first pages; the count only bounds the request.
			v.log.Debug().Err(err).Msg("Could not count PDF pages")
		}
		if count > MaxPagesSync {
			v.log.Warn().
				Int("pages", count).
				Int("max_pages", MaxPagesSync).
				Msg("PDF exceeds synchronous page limit, reading first pages only")
		}
		for p := 1; p <= count && p <= MaxPagesSync; p++ {
			pages = append(pages, int32(p))
		}
	}

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  data,
					MimeType: mimeType,
				},
				Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
				Pages:    pages,
			},
		},
	}

	resp, err := v.client.BatchAnnotateFiles(ctx, req, noRetry())
	if err != nil {
		return nil, fmt.Errorf("%w: Vision API call failed: %v", ErrOCRFailed, err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("%w: no response from Vision API", ErrOCRFailed)
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, fmt.Errorf("%w: Vision API error: %s", ErrOCRFailed, fileResp.Error.Message)
	}

	return collectPages(fileResp.Responses)
}

// collectPages concatenates page texts in reading order and averages page confidence.
func collectPages(pages []*visionpb.AnnotateImageResponse) (*OCRResult, error) {
	var allText strings.Builder
	var confidenceSum float32
	var confidenceCount int

	for pageIdx, page := range pages {
		if page.Error != nil {
			return nil, fmt.Errorf("%w: page %d: %s", ErrOCRFailed, pageIdx+1, page.Error.Message)
		}
		if page.FullTextAnnotation == nil {
			continue
		}

		if allText.Len() > 0 {
			allText.WriteString("\n\n")
		}
		allText.WriteString(page.FullTextAnnotation.Text)

		for _, p := range page.FullTextAnnotation.Pages {
			if p.Confidence > 0 {
				confidenceSum += p.Confidence
				confidenceCount++
			}
		}
	}

	text := allText.String()
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	var avgConfidence float32
	if confidenceCount > 0 {
		avgConfidence = confidenceSum / float32(confidenceCount)
	}

	return &OCRResult{
		Text:       text,
		PageCount:  len(pages),
		Confidence: avgConfidence,
	}, nil
}

// Close closes the underlying Vision client.
func (v *VisionEngine) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
