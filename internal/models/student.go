package models

import "time"

// Student represents a learner known to the roster.
type Student struct {
	ID         string    `db:"id" json:"id"`
	Identifier string    `db:"identifier" json:"identifier"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates search parameters for listing students.
type StudentFilter struct {
	Search   string
	CourseID string
	Page     int
	PageSize int
}
