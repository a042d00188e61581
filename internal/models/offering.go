package models

import "time"

// OfferingStatus is the enrollment-acceptance lifecycle of an offering.
type OfferingStatus string

const (
	OfferingStatusOpen   OfferingStatus = "OPEN"
	OfferingStatusClosed OfferingStatus = "CLOSED"
)

// Valid reports whether the status is a known lifecycle value.
func (s OfferingStatus) Valid() bool {
	return s == OfferingStatusOpen || s == OfferingStatusClosed
}

// Offering is one schedulable section of a subject for a cohort, class and term.
type Offering struct {
	ID         string         `db:"id" json:"id"`
	SubjectID  string         `db:"subject_id" json:"subject_id"`
	Cohort     string         `db:"cohort" json:"cohort"`
	ClassLabel string         `db:"class_label" json:"class_label"`
	Term       string         `db:"term" json:"term"`
	Status     OfferingStatus `db:"status" json:"status"`
	Capacity   *int           `db:"capacity" json:"capacity,omitempty"`
	Day        *string        `db:"day" json:"day,omitempty"`
	StartTime  *string        `db:"start_time" json:"start_time,omitempty"`
	EndTime    *string        `db:"end_time" json:"end_time,omitempty"`
	Room       *string        `db:"room" json:"room,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// OfferingDetail enriches Offering with the parent subject's attributes.
// Subject fields are read from the subjects table, never copied onto the
// offering row.
type OfferingDetail struct {
	Offering
	SubjectCode    string        `db:"subject_code" json:"subject_code"`
	SubjectName    string        `db:"subject_name" json:"subject_name"`
	SubjectCredits int           `db:"subject_credits" json:"subject_credits"`
	SubjectStatus  SubjectStatus `db:"subject_status" json:"subject_status"`
}

// OfferingFilter provides filters for listing offerings.
type OfferingFilter struct {
	SubjectID  string
	Cohort     string
	ClassLabel string
	Term       string
	Status     OfferingStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
