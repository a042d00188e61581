package models

import "time"

// Student is a roster entry used for enrollment checks and broadcast
// notifications. Account management lives outside this service.
type Student struct {
	ID        string    `db:"id" json:"id"`
	NIM       string    `db:"nim" json:"nim"`
	FullName  string    `db:"full_name" json:"full_name"`
	Cohort    string    `db:"cohort" json:"cohort"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	Cohort    string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
