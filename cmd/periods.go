package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"transcripts/internal/logger"
	"transcripts/internal/period"
	"transcripts/pkg/models"
)

var periodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "List the periods a student is expected to report on",
	Long: `List every reporting period from year 1 through the given year of study.

The institution is classified from its name or type: a name containing
"TVET" or "College" uses terms (Term 1-3), anything else uses semesters
(Semester 1-2). Years outside 1-5 are clamped.`,
	Example: `  transcripts periods --institution "University of Nairobi" --year 3
  transcripts periods --institution "Kabete TVET College" --year 2 --json`,
	Args: cobra.NoArgs,
	RunE: runPeriods,
}

// PeriodsOutput is the JSON output of the periods command.
type PeriodsOutput struct {
	Institution models.InstitutionType    `json:"institution"`
	YearOfStudy int                       `json:"yearOfStudy"`
	Periods     []models.PeriodIdentifier `json:"periods"`
	Optional    []string                  `json:"optional,omitempty"`
}

func init() {
	rootCmd.AddCommand(periodsCmd)

	periodsCmd.Flags().String("institution", "", "Institution name or type [REQUIRED]")
	periodsCmd.Flags().Int("year", period.MinYear, "Current year of study (1-5)")
	periodsCmd.Flags().Bool("json", false, "Output as JSON")

	periodsCmd.MarkFlagRequired("institution")
}

func runPeriods(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("periods")

	label, _ := cmd.Flags().GetString("institution")
	year, _ := cmd.Flags().GetInt("year")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	institution := period.Classify(label)
	year = period.ClampYear(year)
	periods := period.ExpectedPeriods(label, year)

	log.Debug().
		Str("institution", string(institution)).
		Int("year", year).
		Int("periods", len(periods)).
		Msg("Expected periods computed")

	if jsonOutput {
		payload, err := marshalJSON(PeriodsOutput{
			Institution: institution,
			YearOfStudy: year,
			Periods:     periods,
			Optional:    period.TaxonomyFor(institution).Optional,
		})
		if err != nil {
			return err
		}
		return writeOutput(payload, "", log)
	}

	fmt.Printf("Institution type: %s\n", institution)
	fmt.Printf("Year of study: %d\n\n", year)
	for _, p := range periods {
		fmt.Printf("  Year %d  %s\n", p.YearOfStudy, p.AcademicPeriod)
	}
	if optional := period.TaxonomyFor(institution).Optional; len(optional) > 0 {
		fmt.Printf("\nAlso accepted: %s\n", strings.Join(optional, ", "))
	}
	return nil
}
