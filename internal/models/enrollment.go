package models

import "time"

// Enrollment records that one student takes one offering for one term.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	SubjectID  string    `db:"subject_id" json:"subject_id"`
	OfferingID string    `db:"offering_id" json:"offering_id"`
	Term       string    `db:"term" json:"term"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentDetail enriches Enrollment with student and subject info for
// term-plan and roster views.
type EnrollmentDetail struct {
	Enrollment
	StudentName    string `db:"student_name" json:"student_name"`
	StudentNIM     string `db:"student_nim" json:"student_nim"`
	SubjectCode    string `db:"subject_code" json:"subject_code"`
	SubjectName    string `db:"subject_name" json:"subject_name"`
	SubjectCredits int    `db:"subject_credits" json:"subject_credits"`
	ClassLabel     string `db:"class_label" json:"class_label"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID  string
	SubjectID  string
	OfferingID string
	Term       string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
