// Package grade extracts a grade signal from transcript text.
//
// Extraction is an ordered list of rules evaluated against whitespace-normalized
// text. The first rule that matches wins, so the order of Rules() is the
// priority between institutional conventions: a letter mean grade beats a
// percentage mean score, which beats a bare average, which beats an explicit
// GPA token.
package grade

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"transcripts/pkg/models"
)

// MaxGPA is the ceiling of the normalized scale.
const MaxGPA = 5.0

// Rule names, reported in Match.Rule.
const (
	RuleMeanGrade = "mean_grade"
	RuleMeanScore = "mean_score"
	RuleAverage   = "average"
	RuleGPA       = "gpa"
)

// Rule pairs a matcher with the normalizer that turns its capture into a signal.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp

	// Normalize converts the first capture group into a signal. ok=false makes
	// the rule a no-match and the cascade moves on.
	Normalize func(capture string) (signal models.GradeSignal, ok bool)
}

// Apply runs the rule against already-normalized text.
func (r Rule) Apply(text string) (models.GradeSignal, bool) {
	m := r.Pattern.FindStringSubmatch(text)
	if m == nil || len(m) < 2 {
		return models.GradeSignal{}, false
	}
	return r.Normalize(m[1])
}

// Match is the outcome of an extraction.
type Match struct {
	Signal models.GradeSignal
	// Rule is the name of the winning rule, empty when nothing matched.
	Rule string
}

var (
	meanGradePattern = regexp.MustCompile(`(?i)MEAN\s*GRADE\s*[:\-]?\s*([A-E])\b`)
	meanScorePattern = regexp.MustCompile(`(?i)MEAN\s*SCORE\s*[:\-]?\s*([0-9]+(?:\.[0-9]+)?)`)
	averagePattern   = regexp.MustCompile(`(?i)AVERAGE\s*[:\-]?\s*([0-9]+(?:\.[0-9]+)?)`)
	gpaPattern       = regexp.MustCompile(`(?i)\bGPA\s*[:\-]?\s*([0-9]+(?:\.[0-9]+)?)`)

	whitespace = regexp.MustCompile(`\s+`)
)

var defaultRules = []Rule{
	{Name: RuleMeanGrade, Pattern: meanGradePattern, Normalize: fromMeanGrade},
	{Name: RuleMeanScore, Pattern: meanScorePattern, Normalize: fromPercentage},
	{Name: RuleAverage, Pattern: averagePattern, Normalize: fromPercentage},
	{Name: RuleGPA, Pattern: gpaPattern, Normalize: fromGPA},
}

// Rules returns the extraction cascade in priority order.
func Rules() []Rule {
	rules := make([]Rule, len(defaultRules))
	copy(rules, defaultRules)
	return rules
}

// Extract returns the grade signal of text. No match yields an all-nil signal.
func Extract(text string) models.GradeSignal {
	return ExtractMatch(text).Signal
}

// ExtractMatch is Extract that also reports which rule won.
func ExtractMatch(text string) Match {
	return ExtractWith(defaultRules, text)
}

// ExtractWith evaluates rules in order against text.
func ExtractWith(rules []Rule, text string) Match {
	clean := NormalizeWhitespace(text)
	if clean == "" {
		return Match{}
	}
	for _, rule := range rules {
		if signal, ok := rule.Apply(clean); ok {
			return Match{Signal: signal, Rule: rule.Name}
		}
	}
	return Match{}
}

// NormalizeWhitespace collapses whitespace runs to single spaces and trims.
func NormalizeWhitespace(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// PercentageToGPA maps a percentage onto the 0-5 scale, rounded to two
// decimals and clamped at MaxGPA.
func PercentageToGPA(percent float64) float64 {
	// percent*5/100 keeps halves exact (53.5 -> 267.5) where percent/20 would not.
	gpa := math.Round(percent*5) / 100
	return math.Min(gpa, MaxGPA)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func fromMeanGrade(capture string) (models.GradeSignal, bool) {
	letter := models.MeanGrade(strings.ToUpper(capture))
	gpa, ok := letter.GPA()
	if !ok {
		return models.GradeSignal{}, false
	}
	return models.GradeSignal{
		GPA:       models.Float64(gpa),
		MeanGrade: &letter,
	}, true
}

func fromPercentage(capture string) (models.GradeSignal, bool) {
	raw, ok := parseNumber(capture)
	if !ok {
		return models.GradeSignal{}, false
	}
	return models.GradeSignal{
		GPA:        models.Float64(PercentageToGPA(raw)),
		RawAverage: models.Float64(raw),
	}, true
}

func fromGPA(capture string) (models.GradeSignal, bool) {
	gpa, ok := parseNumber(capture)
	if !ok {
		return models.GradeSignal{}, false
	}
	return models.GradeSignal{GPA: models.Float64(gpa)}, true
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
