package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"transcripts/internal/config"
	"transcripts/internal/logger"
)

var version = "1.0.0"

// appConfig is set by Execute before any command runs.
var appConfig = config.New()

var rootCmd = &cobra.Command{
	Use:   "transcripts",
	Short: "Transcripts CLI - extract grades from student documents and track performance",
	Long: `Transcripts CLI reads uploaded student documents (PDF, Word, images, text),
extracts the grade they report, records it against the student's year of
study and academic period, and reconciles recorded grades with the periods a
student is expected to report on.

Configuration is read from the environment (TRANSCRIPTS_ prefix) and an
optional YAML file named by TRANSCRIPTS_CONFIG.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("Transcripts CLI executed")

		fmt.Println("Welcome to Transcripts CLI!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

// Execute runs the CLI with cfg. A nil cfg uses the defaults.
func Execute(cfg *config.Config) {
	log := logger.WithComponent("cmd")
	if cfg != nil {
		appConfig = cfg
	}

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
