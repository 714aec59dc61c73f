package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"transcripts/internal/document"
	"transcripts/internal/logger"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [file]",
	Short: "Extract the text of a student document",
	Long: `Extract plain text from a PDF, Word document (DOCX/DOC), image or text file.

Digital PDFs are read from their text layer. Scanned PDFs (a text layer of
fewer than 20 characters) and images are sent to the configured OCR engine
once. Unreadable documents produce empty output rather than an error.

OCR engine selection (TRANSCRIPTS_OCR_ENGINE):
  vision      Google Cloud Vision (default)
  documentai  Google Document AI OCR processor
  none        no OCR

Google credentials:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string`,
	Example: `  # Print the text of a transcript
  transcripts normalize transcript.pdf

  # Override the detected format and save the text
  transcripts normalize upload.bin --content-type image/png -o text.txt

  # Include format and OCR details as JSON
  transcripts normalize scan.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runNormalize,
}

// NormalizeOutput is the JSON output of the normalize command.
type NormalizeOutput struct {
	Text               string `json:"text"`
	Format             string `json:"format"`
	OCRUsed            bool   `json:"ocr_used"`
	OCRError           string `json:"ocr_error,omitempty"`
	ProcessingDuration string `json:"processing_duration"`
	FileName           string `json:"file_name"`
	FileSize           int64  `json:"file_size"`
}

func init() {
	rootCmd.AddCommand(normalizeCmd)

	normalizeCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	normalizeCmd.Flags().String("content-type", "", "Declared content type (default: detect from name and content)")
	normalizeCmd.Flags().Bool("json", false, "Output as JSON")
	normalizeCmd.Flags().Duration("timeout", 0, "Processing timeout (default: TRANSCRIPTS_OCR_TIMEOUT)")
}

func runNormalize(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("normalize")

	outputPath, _ := cmd.Flags().GetString("output")
	contentType, _ := cmd.Flags().GetString("content-type")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = appConfig.OCRTimeout
	}

	path := args[0]
	log.Info().
		Str("file", path).
		Str("content_type", contentType).
		Dur("timeout", timeout).
		Msg("Starting document normalization")

	data, info, err := readDocument(path, appConfig.MaxDocumentBytes(), log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	engine := createOCREngine(ctx, appConfig, log)
	defer closeOCREngine(engine, log)

	start := time.Now()
	out := document.NewNormalizer(engine).NormalizeDetailed(ctx, data, document.Hints{
		ContentType: contentType,
		Filename:    filepath.Base(path),
	})
	duration := time.Since(start)

	if out.OCRErr != nil {
		log.Warn().Err(out.OCRErr).Msg(explainOCRError(out.OCRErr))
	}
	log.Info().
		Str("format", string(out.Format)).
		Bool("ocr", out.OCRUsed).
		Int("text_length", len(out.Text)).
		Dur("duration", duration).
		Msg("Document normalized")

	if !jsonOutput {
		text := out.Text
		if text != "" && !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		return writeOutput([]byte(text), outputPath, log)
	}

	result := NormalizeOutput{
		Text:               out.Text,
		Format:             string(out.Format),
		OCRUsed:            out.OCRUsed,
		ProcessingDuration: duration.String(),
		FileName:           info.Name(),
		FileSize:           info.Size(),
	}
	if out.OCRErr != nil {
		result.OCRError = out.OCRErr.Error()
	}
	payload, err := marshalJSON(result)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON output")
		return fmt.Errorf("normalize: %w", err)
	}
	return writeOutput(payload, outputPath, log)
}
