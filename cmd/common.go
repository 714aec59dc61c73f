package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"transcripts/internal/blob"
	"transcripts/internal/config"
	"transcripts/internal/ocr"
	"transcripts/internal/store"
)

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// createOCREngine builds the engine named in the configuration. A missing
// engine is not fatal: scanned documents then normalize to empty text.
func createOCREngine(ctx context.Context, cfg *config.Config, log zerolog.Logger) ocr.Engine {
	var (
		engine ocr.Engine
		err    error
	)
	switch cfg.OCREngine {
	case config.OCREngineNone:
		log.Info().Msg("OCR disabled, scanned documents and images yield no text")
		return nil
	case config.OCREngineDocumentAI:
		engine, err = ocr.NewDocumentAIEngine(ctx, ocr.DocumentAIConfig{
			ProjectID:   cfg.GoogleCloudProject,
			Location:    cfg.GoogleCloudLocation,
			ProcessorID: cfg.DocumentAIProcessorID,
		})
	default:
		engine, err = ocr.NewVisionEngine(ctx)
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("engine", cfg.OCREngine).
			Msg("OCR engine unavailable, continuing without OCR")
		fmt.Fprintln(os.Stderr, explainOCRError(err))
		return nil
	}

	log.Debug().Str("engine", engine.Name()).Msg("OCR engine created")
	return engine
}

func closeOCREngine(engine ocr.Engine, log zerolog.Logger) {
	if engine == nil {
		return
	}
	if err := engine.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close OCR engine")
	}
}

// explainOCRError provides user-friendly messages for OCR failures
func explainOCRError(err error) string {
	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "OCR timed out. Try increasing --timeout or TRANSCRIPTS_OCR_TIMEOUT"
	case errors.Is(err, context.Canceled):
		return "OCR was canceled"
	case errors.Is(err, ocr.ErrDocumentTooLarge):
		return "document is too large for OCR (maximum 20MB)"
	case errors.Is(err, ocr.ErrInvalidPDF):
		return "invalid or corrupted PDF file. Please check the file integrity"
	case errors.Is(err, ocr.ErrInvalidConfiguration):
		return "OCR engine is misconfigured. Check TRANSCRIPTS_GOOGLE_CLOUD_PROJECT and TRANSCRIPTS_DOCUMENT_AI_PROCESSOR_ID"
	case errors.Is(err, ocr.ErrMissingCredentials),
		strings.Contains(errStr, "Unauthenticated"),
		strings.Contains(errStr, "invalid_grant"),
		strings.Contains(errStr, "could not find default credentials"),
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return "Google Cloud authentication failed. Set GOOGLE_APPLICATION_CREDENTIALS to a service account JSON file,\n" +
			"set GOOGLE_CREDENTIALS to inline JSON, or run: gcloud auth application-default login"
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return "permission denied. Please ensure the service account may call the configured OCR API"
	case strings.Contains(errStr, "QUOTA_EXCEEDED") || strings.Contains(errStr, "quota"):
		return "Google Cloud OCR quota exceeded. Check your project quotas in the Google Cloud Console"
	default:
		return fmt.Sprintf("OCR failed: %v", err)
	}
}

// readDocument loads a local document after basic checks.
func readDocument(path string, maxBytes int64, log zerolog.Logger) ([]byte, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("File not found")
			return nil, nil, fmt.Errorf("file not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().Str("file", path).Msg("Permission denied accessing file")
			return nil, nil, fmt.Errorf("permission denied accessing file: %s", path)
		}
		return nil, nil, fmt.Errorf("error accessing file: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil, nil, fmt.Errorf("path is not a regular file: %s", path)
	}
	if info.Size() > maxBytes {
		log.Error().
			Str("file", path).
			Int64("size", info.Size()).
			Int64("max_size", maxBytes).
			Msg("File exceeds maximum size limit")
		return nil, nil, fmt.Errorf("file too large (%d bytes). Maximum size is %d bytes", info.Size(), maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, info, nil
}

// readLimited reads r to the end and fails instead of truncating when it
// holds more than maxBytes.
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("input too large. Maximum size is %d bytes", maxBytes)
	}
	return data, nil
}

func newFetcher(cfg *config.Config) *blob.Fetcher {
	fetchCfg := blob.DefaultConfig()
	fetchCfg.Timeout = cfg.FetchTimeout
	fetchCfg.Attempts = cfg.FetchAttempts
	fetchCfg.MaxBytes = cfg.MaxDocumentBytes()
	return blob.NewFetcher(fetchCfg)
}

// openStore connects to MongoDB, or returns an in-memory store for dry runs.
func openStore(ctx context.Context, cfg *config.Config, dryRun bool, log zerolog.Logger) (store.Store, error) {
	if dryRun {
		log.Info().Msg("Dry run, records are kept in memory")
		return store.NewMemory(), nil
	}

	s, err := store.ConnectMongo(ctx, store.DefaultMongoConfig(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection))
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to MongoDB")
		return nil, fmt.Errorf("failed to connect to MongoDB at %s: %w", redactURI(cfg.MongoURI), err)
	}
	return s, nil
}

func closeStore(s store.Store, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to close store")
	}
}

// redactURI hides credentials in a connection string.
func redactURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		return scheme + "://***@" + rest[at+1:]
	}
	return uri
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(data []byte, path string, log zerolog.Logger) error {
	if path == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			log.Error().Err(err).Msg("Failed to write to stdout")
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", path).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().
		Str("output_file", path).
		Int("bytes", len(data)).
		Msg("Results written to file")
	return nil
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON output: %w", err)
	}
	return append(data, '\n'), nil
}
