// Package config loads the process configuration.
//
// Values are layered, lowest precedence first:
//  1. defaults (New)
//  2. YAML file named by TRANSCRIPTS_CONFIG
//  3. environment variables with the TRANSCRIPTS_ prefix, e.g. TRANSCRIPTS_MONGO_URI
//
// Google credentials are not part of this struct; the OCR engines read
// GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS directly.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"transcripts/internal/logger"
)

const envPrefix = "TRANSCRIPTS_"

// OCR engine names accepted by OCREngine.
const (
	OCREngineVision     = "vision"
	OCREngineDocumentAI = "documentai"
	OCREngineNone       = "none"
)

type Config struct {
	// MongoDB
	MongoURI        string `koanf:"mongo_uri"`
	MongoDatabase   string `koanf:"mongo_database"`
	MongoCollection string `koanf:"mongo_collection"`

	// OCR
	OCREngine             string        `koanf:"ocr_engine"`
	OCRTimeout            time.Duration `koanf:"ocr_timeout"`
	GoogleCloudProject    string        `koanf:"google_cloud_project"`
	GoogleCloudLocation   string        `koanf:"google_cloud_location"`
	DocumentAIProcessorID string        `koanf:"document_ai_processor_id"`

	// Blob fetching
	FetchTimeout  time.Duration `koanf:"fetch_timeout"`
	FetchAttempts uint          `koanf:"fetch_attempts"`
	MaxDocumentMB int           `koanf:"max_document_mb"`

	// Pipeline
	BatchWorkers int `koanf:"batch_workers"`

	// Notifications
	NotifyOnNewDocument bool   `koanf:"notify_on_new_document"`
	NotifyOnComplete    bool   `koanf:"notify_on_complete"`
	NotificationEmail   string `koanf:"notification_email"`

	// Metrics
	MetricsAddr string `koanf:"metrics_addr"`

	// Logging
	LogLevel      string `koanf:"log_level"`
	LogFormat     string `koanf:"log_format"`
	LogTimeFormat string `koanf:"log_time_format"`
	LogOutput     string `koanf:"log_output"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		MongoURI:            "mongodb://localhost:27017",
		MongoDatabase:       "transcripts",
		MongoCollection:     "performances",
		OCREngine:           OCREngineVision,
		OCRTimeout:          2 * time.Minute,
		GoogleCloudLocation: "us",
		FetchTimeout:        30 * time.Second,
		FetchAttempts:       3,
		MaxDocumentMB:       20,
		BatchWorkers:        4,
		NotifyOnNewDocument: true,
		LogLevel:            "info",
		LogFormat:           "console",
		LogTimeFormat:       time.RFC3339,
		LogOutput:           "stderr",
	}
}

// Load builds a Config from defaults, the optional YAML file and the environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// TRANSCRIPTS_MONGO_URI -> mongo_uri; keys stay flat.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.OCREngine {
	case OCREngineVision, OCREngineNone:
	case OCREngineDocumentAI:
		if c.GoogleCloudProject == "" {
			return errors.New("google_cloud_project is required for the documentai OCR engine")
		}
		if c.DocumentAIProcessorID == "" {
			return errors.New("document_ai_processor_id is required for the documentai OCR engine")
		}
	default:
		return fmt.Errorf("unknown ocr_engine %q (want vision, documentai or none)", c.OCREngine)
	}
	if c.BatchWorkers < 1 {
		return errors.New("batch_workers must be at least 1")
	}
	if c.FetchAttempts < 1 {
		return errors.New("fetch_attempts must be at least 1")
	}
	if c.MaxDocumentMB < 1 {
		return errors.New("max_document_mb must be at least 1")
	}
	return nil
}

// MaxDocumentBytes returns the document size limit in bytes.
func (c *Config) MaxDocumentBytes() int64 {
	return int64(c.MaxDocumentMB) * 1024 * 1024
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}
