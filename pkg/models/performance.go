package models

import "time"

// InstitutionType is the two-way institution classification.
type InstitutionType string

const (
	InstitutionUniversity InstitutionType = "University"
	InstitutionTVET       InstitutionType = "TVET"
)

// Status of a performance record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
)

// PeriodIdentifier names one reporting slot within a year of study.
type PeriodIdentifier struct {
	YearOfStudy    int    `json:"yearOfStudy" bson:"year_of_study"`
	AcademicPeriod string `json:"academicPeriod" bson:"academic_period"`
}

// PerformanceRecord is the persisted grade for (StudentID, YearOfStudy, AcademicPeriod).
type PerformanceRecord struct {
	StudentID        string `json:"studentId" bson:"student_id"`
	PeriodIdentifier `bson:",inline"`
	GradeSignal      `bson:",inline"`
	Status           Status    `json:"status" bson:"status"`
	SourceDocumentID string    `json:"sourceDocumentId,omitempty" bson:"source_document_id,omitempty"`
	CreatedAt        time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt" bson:"updated_at"`
}

// Key returns the uniqueness key of the record.
func (r PerformanceRecord) Key() RecordKey {
	return RecordKey{
		StudentID:      r.StudentID,
		YearOfStudy:    r.YearOfStudy,
		AcademicPeriod: r.AcademicPeriod,
	}
}

// RecordKey is the unique key of a PerformanceRecord.
type RecordKey struct {
	StudentID      string
	YearOfStudy    int
	AcademicPeriod string
}
