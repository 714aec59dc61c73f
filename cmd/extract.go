package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"transcripts/internal/document"
	"transcripts/internal/grade"
	"transcripts/internal/logger"
	"transcripts/pkg/models"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file|-]",
	Short: "Extract the grade reported by a transcript",
	Long: `Normalize a document to text and extract its grade signal.

Rules are tried in order and the first match wins:
  1. MEAN GRADE: <A-E>          letter grade, A=5 ... E=1
  2. MEAN SCORE: <percentage>   GPA = percentage / 20, at most 5
  3. AVERAGE: <percentage>      GPA = percentage / 20, at most 5
  4. GPA: <number>              used as is

A document without any of these markers yields a pending signal. Use "-" to
read plain text from stdin.`,
	Example: `  # Extract the grade of a transcript
  transcripts extract transcript.pdf

  # Extract from text on stdin
  echo "AVERAGE: 53.50" | transcripts extract -`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

// ExtractOutput is the JSON output of the extract command.
type ExtractOutput struct {
	models.GradeSignal
	Status models.Status `json:"status"`
	Rule   string        `json:"rule,omitempty"`
	Format string        `json:"format"`
	OCR    bool          `json:"ocr_used"`
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().String("content-type", "", "Declared content type (default: detect from name and content)")
	extractCmd.Flags().Duration("timeout", 0, "Processing timeout (default: TRANSCRIPTS_OCR_TIMEOUT)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	contentType, _ := cmd.Flags().GetString("content-type")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = appConfig.OCRTimeout
	}

	var (
		data  []byte
		hints = document.Hints{ContentType: contentType}
		err   error
	)
	if args[0] == "-" {
		data, err = readLimited(os.Stdin, appConfig.MaxDocumentBytes())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		if hints.ContentType == "" {
			hints.ContentType = "text/plain"
		}
	} else {
		data, _, err = readDocument(args[0], appConfig.MaxDocumentBytes(), log)
		if err != nil {
			return err
		}
		hints.Filename = filepath.Base(args[0])
	}

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	engine := createOCREngine(ctx, appConfig, log)
	defer closeOCREngine(engine, log)

	out := document.NewNormalizer(engine).NormalizeDetailed(ctx, data, hints)
	match := grade.ExtractMatch(out.Text)

	log.Info().
		Str("format", string(out.Format)).
		Str("rule", match.Rule).
		Str("status", string(match.Signal.Status())).
		Msg("Grade extracted")

	payload, err := marshalJSON(ExtractOutput{
		GradeSignal: match.Signal,
		Status:      match.Signal.Status(),
		Rule:        match.Rule,
		Format:      string(out.Format),
		OCR:         out.OCRUsed,
	})
	if err != nil {
		return err
	}
	return writeOutput(payload, "", log)
}
