package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// SubjectStatus is the visibility lifecycle of a subject.
type SubjectStatus string

const (
	SubjectStatusActive   SubjectStatus = "ACTIVE"
	SubjectStatusArchived SubjectStatus = "ARCHIVED"
)

// Valid reports whether the status is a known lifecycle value.
func (s SubjectStatus) Valid() bool {
	return s == SubjectStatusActive || s == SubjectStatusArchived
}

// Subject represents a course definition in the catalog.
type Subject struct {
	ID         string         `db:"id" json:"id"`
	Code       string         `db:"code" json:"code"`
	Name       string         `db:"name" json:"name"`
	Credits    int            `db:"credits" json:"credits"`
	Cohort     string         `db:"cohort" json:"cohort"`
	ClassLabel string         `db:"class_label" json:"class_label"`
	Program    string         `db:"program" json:"program"`
	Semester   int            `db:"semester" json:"semester"`
	Status     SubjectStatus  `db:"status" json:"status"`
	TeacherIDs pq.StringArray `db:"teacher_ids" json:"teacher_ids"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// CanonicalName returns the duplicate-prevention identity of the subject.
// Two subjects whose names match under this comparison are the same course
// as far as a student's term plan is concerned.
func (s Subject) CanonicalName() string {
	return CanonicalCourseName(s.Name)
}

// CanonicalCourseName normalises a course name for identity comparison.
func CanonicalCourseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	Cohort     string
	ClassLabel string
	Program    string
	Status     SubjectStatus
	TeacherID  string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
