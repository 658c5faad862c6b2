package models

import "time"

// CourseMaterial is a file or link shared with a course.
type CourseMaterial struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	FilePath    *string   `db:"file_path" json:"file_path,omitempty"`
	URL         *string   `db:"url" json:"url,omitempty"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
