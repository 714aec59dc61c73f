package models

// MeanGrade is a single letter summarizing performance for a period.
type MeanGrade string

const (
	MeanGradeA MeanGrade = "A"
	MeanGradeB MeanGrade = "B"
	MeanGradeC MeanGrade = "C"
	MeanGradeD MeanGrade = "D"
	MeanGradeE MeanGrade = "E"
)

// GPA returns the 0-5 scale value for the letter, or false for an unknown letter.
func (g MeanGrade) GPA() (float64, bool) {
	switch g {
	case MeanGradeA:
		return 5, true
	case MeanGradeB:
		return 4, true
	case MeanGradeC:
		return 3, true
	case MeanGradeD:
		return 2, true
	case MeanGradeE:
		return 1, true
	}
	return 0, false
}

// GradeSignal is the grade information extracted from a transcript.
//
// GPA is set whenever any signal was found; RawAverage and MeanGrade keep the
// value the GPA was derived from for display and audit. All nil means no grade
// was found.
type GradeSignal struct {
	GPA        *float64   `json:"gpa" bson:"gpa"`
	RawAverage *float64   `json:"rawAverage" bson:"raw_average"`
	MeanGrade  *MeanGrade `json:"meanGrade" bson:"mean_grade"`
}

// Found reports whether the signal carries a grade.
func (s GradeSignal) Found() bool {
	return s.GPA != nil
}

// Status returns complete when a GPA is present, pending otherwise.
func (s GradeSignal) Status() Status {
	if s.GPA != nil {
		return StatusComplete
	}
	return StatusPending
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}
