package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"transcripts/internal/logger"
	"transcripts/internal/performance"
	"transcripts/pkg/services"
)

var performanceCmd = &cobra.Command{
	Use:   "performance",
	Short: "Show a student's reconciled performance and trend",
	Long: `Merge a student's recorded grades with every period they are expected to
report on through the given year of study. Periods without a record are shown
as pending. Each year with at least one grade gets its average GPA and the
change from the previous such year.

Reads from MongoDB (TRANSCRIPTS_MONGO_URI, TRANSCRIPTS_MONGO_DATABASE,
TRANSCRIPTS_MONGO_COLLECTION).`,
	Example: `  transcripts performance --student S123 --institution "University of Nairobi" --year 3
  transcripts performance --student S123 --institution "Kabete TVET" --year 2 --json`,
	Args: cobra.NoArgs,
	RunE: runPerformance,
}

func init() {
	rootCmd.AddCommand(performanceCmd)

	performanceCmd.Flags().String("student", "", "Student ID [REQUIRED]")
	performanceCmd.Flags().String("institution", "", "Institution name or type [REQUIRED]")
	performanceCmd.Flags().Int("year", 1, "Current year of study (1-5)")
	performanceCmd.Flags().Bool("json", false, "Output as JSON")
	performanceCmd.Flags().Duration("timeout", 30*time.Second, "Query timeout")

	performanceCmd.MarkFlagRequired("student")
	performanceCmd.MarkFlagRequired("institution")
}

func runPerformance(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("performance")

	student, _ := cmd.Flags().GetString("student")
	institution, _ := cmd.Flags().GetString("institution")
	year, _ := cmd.Flags().GetInt("year")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	st, err := openStore(ctx, appConfig, false, log)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	var svc services.PerformanceService = performance.NewReconciler(st)
	report, err := svc.Reconcile(ctx, student, institution, year)
	if err != nil {
		log.Error().Err(err).Str("student_id", student).Msg("Failed to reconcile performance")
		return fmt.Errorf("failed to reconcile performance: %w", err)
	}

	return printReport(report, jsonOutput, log)
}

func printReport(report *performance.Report, jsonOutput bool, log zerolog.Logger) error {
	if jsonOutput {
		payload, err := marshalJSON(report)
		if err != nil {
			return err
		}
		return writeOutput(payload, "", log)
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Student: %s (%s, year %d)\n", report.StudentID, report.Institution, report.YearOfStudy)
	fmt.Println(strings.Repeat("=", 60))
	for _, slot := range report.Periods {
		gpa := "-"
		if slot.GPA != nil {
			gpa = fmt.Sprintf("%.2f", *slot.GPA)
		}
		note := ""
		if !slot.Expected {
			note = " (optional)"
		}
		fmt.Printf("  Year %d  %-16s %-9s %s%s\n", slot.YearOfStudy, slot.AcademicPeriod, slot.Status, gpa, note)
	}

	if len(report.Years) == 0 {
		fmt.Println("\nNo grades recorded yet.")
		return nil
	}

	fmt.Println("\nYearly averages:")
	for _, y := range report.Years {
		if y.Change == nil {
			fmt.Printf("  Year %d  %.2f\n", y.YearOfStudy, y.AverageGPA)
			continue
		}
		fmt.Printf("  Year %d  %.2f  %+.2f %s\n", y.YearOfStudy, y.AverageGPA, *y.Change, y.Direction)
	}
	fmt.Println()
	return nil
}
