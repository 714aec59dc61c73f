package models

// Document types accepted on upload. Only transcripts carry grades.
const (
	DocumentTypeTranscript       = "Transcript"
	DocumentTypeFeeStructure     = "Fee Structure"
	DocumentTypeFeeStatement     = "Fee Statement"
	DocumentTypeDepartmentLetter = "Department Letter"
)
