package models

import "time"

// Enrollment links a student to a course and carries optional grades.
type Enrollment struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	MidtermGrade *float64  `db:"midterm_grade" json:"midterm_grade,omitempty"`
	FinalGrade   *float64  `db:"final_grade" json:"final_grade,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student identity fields.
type EnrollmentDetail struct {
	Enrollment
	StudentIdentifier string `db:"student_identifier" json:"student_identifier"`
	StudentName       string `db:"student_name" json:"student_name"`
}

// GradeImportReport accumulates the outcome of a CSV grade import.
type GradeImportReport struct {
	Updated int      `json:"updated"`
	Skipped []string `json:"skipped,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}
