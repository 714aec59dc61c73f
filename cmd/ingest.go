package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"transcripts/internal/document"
	"transcripts/internal/ingest"
	"transcripts/internal/logger"
	"transcripts/internal/metrics"
	"transcripts/internal/performance"
	"transcripts/pkg/models"
	"transcripts/pkg/services"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file|folder|url]...",
	Short: "Extract grades from uploaded documents and record them",
	Long: `Run uploaded documents through the pipeline: fetch, normalize to text,
extract the grade and record it for the student's year of study and period.

Documents are given either as arguments, all for the same student and period
(--student, --institution, --year, --period), or as a JSON manifest of tasks
(--manifest). Folders are searched for supported documents. URLs may be
http(s):// or file://.

A document without a recognizable grade is recorded as pending. Uploading
again for the same student and period replaces the earlier record.

Configuration:
  TRANSCRIPTS_MONGO_URI, TRANSCRIPTS_MONGO_DATABASE, TRANSCRIPTS_MONGO_COLLECTION
  TRANSCRIPTS_OCR_ENGINE, TRANSCRIPTS_OCR_TIMEOUT
  TRANSCRIPTS_BATCH_WORKERS - Number of parallel workers (default: 4)
  TRANSCRIPTS_NOTIFY_ON_NEW_DOCUMENT, TRANSCRIPTS_NOTIFY_ON_COMPLETE, TRANSCRIPTS_NOTIFICATION_EMAIL`,
	Example: `  # Record a semester transcript
  transcripts ingest transcript.pdf --student S123 --institution "University of Nairobi" --year 2 --period "Semester 1"

  # Process a manifest of uploads without touching MongoDB and show the result
  transcripts ingest --manifest uploads.json --dry-run --report

  # Expose Prometheus metrics while a large batch runs
  transcripts ingest --manifest uploads.json --metrics-addr :9090`,
	RunE: runIngest,
}

// supportedExtensions are picked up when a folder is given.
var supportedExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".doc": true, ".txt": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("student", "", "Student ID")
	ingestCmd.Flags().String("institution", "", "Institution name or type")
	ingestCmd.Flags().Int("year", 0, "Year of study (1-5)")
	ingestCmd.Flags().String("period", "", "Academic period, e.g. \"Semester 1\" or \"Term 2\"")
	ingestCmd.Flags().String("type", models.DocumentTypeTranscript, "Document type")
	ingestCmd.Flags().String("content-type", "", "Declared content type for every document")
	ingestCmd.Flags().String("manifest", "", "JSON file with an array of tasks")
	ingestCmd.Flags().Int("workers", 0, "Parallel workers (default: TRANSCRIPTS_BATCH_WORKERS)")
	ingestCmd.Flags().Bool("dry-run", false, "Keep records in memory instead of MongoDB")
	ingestCmd.Flags().Bool("report", false, "Print the reconciled performance of each student afterwards")
	ingestCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (default: TRANSCRIPTS_METRICS_ADDR)")
	ingestCmd.Flags().Duration("timeout", 30*time.Minute, "Overall timeout")
	ingestCmd.Flags().Bool("json", false, "Print results as JSON")
}

func runIngest(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ingest")

	manifest, _ := cmd.Flags().GetString("manifest")
	workers, _ := cmd.Flags().GetInt("workers")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	report, _ := cmd.Flags().GetBool("report")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if workers <= 0 {
		workers = appConfig.BatchWorkers
	}
	if metricsAddr == "" {
		metricsAddr = appConfig.MetricsAddr
	}

	var (
		tasks []ingest.Task
		err   error
	)
	if manifest != "" {
		tasks, err = loadManifest(manifest)
	} else {
		tasks, err = tasksFromArgs(cmd, args)
	}
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No documents to process.")
		return nil
	}

	log.Info().
		Int("tasks", len(tasks)).
		Int("workers", workers).
		Bool("dry_run", dryRun).
		Msg("Starting ingestion")

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	st, err := openStore(ctx, appConfig, dryRun, log)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	engine := createOCREngine(ctx, appConfig, log)
	defer closeOCREngine(engine, log)

	m := metrics.NewManager()
	if metricsAddr != "" {
		stop := serveMetrics(metricsAddr, m, log)
		defer stop()
	}

	reconciler := performance.NewReconciler(st)
	var svc services.IngestionService = ingest.NewService(
		newFetcher(appConfig),
		document.NewNormalizer(engine),
		reconciler,
		ingest.WithMetrics(m),
		ingest.WithOCRTimeout(appConfig.OCRTimeout),
		ingest.WithNotifier(ingest.NewLogNotifier(), ingest.NotificationPolicy{
			OnNewDocument: appConfig.NotifyOnNewDocument,
			OnComplete:    appConfig.NotifyOnComplete,
			Recipient:     appConfig.NotificationEmail,
		}),
	)

	if !jsonOutput {
		fmt.Println(strings.Repeat("=", 80))
		fmt.Println("                         TRANSCRIPT INGESTION")
		fmt.Println(strings.Repeat("=", 80))
		if dryRun {
			fmt.Println("Mode: dry run (records kept in memory)")
		}
		fmt.Printf("Processing %d documents with %d workers...\n\n", len(tasks), workers)
	}

	var progress ingest.ProgressFunc
	if !jsonOutput {
		progress = func(done, total int, res ingest.Result) {
			fmt.Printf("[%d/%d] %s - %s%s\n", done, total, taskName(res.Task), getStatusEmoji(res.Status()), resultDetail(res))
		}
	}
	results := svc.ProcessBatch(ctx, tasks, workers, progress)

	counts := map[string]int{}
	for _, res := range results {
		counts[res.Status()]++
	}

	if jsonOutput {
		payload, err := marshalJSON(resultsOutput(results))
		if err != nil {
			return err
		}
		if err := writeOutput(payload, "", log); err != nil {
			return err
		}
	} else {
		fmt.Println()
		fmt.Println(strings.Repeat("=", 50))
		fmt.Println("                 SUMMARY")
		fmt.Println(strings.Repeat("=", 50))
		fmt.Printf("Complete: %d\n", counts["complete"])
		fmt.Printf("Pending: %d\n", counts["pending"])
		if counts["skipped"] > 0 {
			fmt.Printf("Skipped: %d\n", counts["skipped"])
		}
		if counts["error"] > 0 {
			fmt.Printf("Errors: %d\n", counts["error"])
		}
		fmt.Println()
	}

	if report {
		if err := printReports(ctx, reconciler, tasks, jsonOutput, log); err != nil {
			return err
		}
	}

	log.Info().
		Int("total", len(results)).
		Int("complete", counts["complete"]).
		Int("pending", counts["pending"]).
		Int("errors", counts["error"]).
		Msg("Ingestion completed")

	if counts["error"] > 0 {
		return fmt.Errorf("%d of %d documents failed", counts["error"], len(results))
	}
	return nil
}

func tasksFromArgs(cmd *cobra.Command, args []string) ([]ingest.Task, error) {
	student, _ := cmd.Flags().GetString("student")
	institution, _ := cmd.Flags().GetString("institution")
	year, _ := cmd.Flags().GetInt("year")
	academicPeriod, _ := cmd.Flags().GetString("period")
	docType, _ := cmd.Flags().GetString("type")
	contentType, _ := cmd.Flags().GetString("content-type")

	if len(args) == 0 {
		return nil, errors.New("no documents given: pass files, folders or URLs, or --manifest")
	}
	var missing []string
	if student == "" {
		missing = append(missing, "--student")
	}
	if institution == "" {
		missing = append(missing, "--institution")
	}
	if year == 0 {
		missing = append(missing, "--year")
	}
	if academicPeriod == "" {
		missing = append(missing, "--period")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required flags not set: %s", strings.Join(missing, ", "))
	}

	var locations []string
	for _, arg := range args {
		if strings.Contains(arg, "://") {
			locations = append(locations, arg)
			continue
		}
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("document not found: %s", arg)
		}
		if !info.IsDir() {
			locations = append(locations, arg)
			continue
		}
		found, err := findDocuments(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to search %s: %w", arg, err)
		}
		locations = append(locations, found...)
	}

	tasks := make([]ingest.Task, 0, len(locations))
	for _, loc := range locations {
		tasks = append(tasks, ingest.Task{
			StudentID:        student,
			InstitutionLabel: institution,
			YearOfStudy:      year,
			AcademicPeriod:   academicPeriod,
			DocumentType:     docType,
			URL:              loc,
			ContentType:      contentType,
		})
	}
	return tasks, nil
}

func loadManifest(path string) ([]ingest.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var tasks []ingest.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return tasks, nil
}

// findDocuments finds all supported documents in the specified folder
func findDocuments(folderPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(folderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && supportedExtensions[strings.ToLower(filepath.Ext(info.Name()))] {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

func serveMetrics(addr string, m *metrics.Manager, log zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to stop metrics server")
		}
		wg.Wait()
	}
}

func taskName(t ingest.Task) string {
	name := t.Filename
	if name == "" {
		name = filepath.Base(t.URL)
	}
	return fmt.Sprintf("%s (%s, year %d, %s)", name, t.StudentID, t.YearOfStudy, t.AcademicPeriod)
}

func resultDetail(res ingest.Result) string {
	switch {
	case res.Err != nil:
		return fmt.Sprintf(" (%s)", res.Err.Error())
	case res.Record != nil && res.Record.GPA != nil:
		return fmt.Sprintf(" (GPA %.2f via %s)", *res.Record.GPA, res.Rule)
	}
	return ""
}

// getStatusEmoji returns an emoji for the processing status
func getStatusEmoji(status string) string {
	switch status {
	case "complete":
		return "✅"
	case "pending":
		return "⚠️"
	case "skipped":
		return "⏭️"
	case "error":
		return "❌"
	default:
		return "❓"
	}
}

type resultOutput struct {
	ingest.Result
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func resultsOutput(results []ingest.Result) []resultOutput {
	out := make([]resultOutput, len(results))
	for i, res := range results {
		out[i] = resultOutput{Result: res, Status: res.Status()}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	return out
}

// printReports reconciles every student of the batch at the highest year seen.
func printReports(ctx context.Context, svc services.PerformanceService, tasks []ingest.Task, jsonOutput bool, log zerolog.Logger) error {
	type key struct{ student, institution string }
	years := map[key]int{}
	var order []key
	for _, t := range tasks {
		k := key{t.StudentID, t.InstitutionLabel}
		if _, ok := years[k]; !ok {
			order = append(order, k)
		}
		if t.YearOfStudy > years[k] {
			years[k] = t.YearOfStudy
		}
	}

	for _, k := range order {
		report, err := svc.Reconcile(ctx, k.student, k.institution, years[k])
		if err != nil {
			log.Error().Err(err).Str("student_id", k.student).Msg("Failed to reconcile performance")
			continue
		}
		if err := printReport(report, jsonOutput, log); err != nil {
			return err
		}
	}
	return nil
}
