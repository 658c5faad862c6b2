package models

import "time"

// Course represents a taught course identified by a scannable QR token.
type Course struct {
	ID                string     `db:"id" json:"id"`
	Code              string     `db:"code" json:"code"`
	Name              string     `db:"name" json:"name"`
	Slug              string     `db:"slug" json:"slug"`
	QRToken           string     `db:"qr_token" json:"qr_token"`
	Semester          string     `db:"semester" json:"semester"`
	Lecturer          string     `db:"lecturer" json:"lecturer"`
	CourseHours       int        `db:"course_hours" json:"course_hours"`
	SemesterStartDate *time.Time `db:"semester_start_date" json:"semester_start_date,omitempty"`
	TotalWeeks        int        `db:"total_weeks" json:"total_weeks"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// CourseSummary extends Course with roster and session counts for listings.
type CourseSummary struct {
	Course
	StudentCount int `db:"student_count" json:"student_count"`
	SessionCount int `db:"session_count" json:"session_count"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	Semester string
	Search   string
	Page     int
	PageSize int
}
