package models

import "time"

// ClassSession is one concrete dated occurrence of a recurring schedule.
// At most one session exists per (course, date, start_time).
type ClassSession struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Date        time.Time `db:"date" json:"date"`
	WeekNumber  int       `db:"week_number" json:"week_number"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	IsCancelled bool      `db:"is_cancelled" json:"is_cancelled"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SessionFilter scopes session listings.
type SessionFilter struct {
	CourseID         string
	IncludeCancelled bool
	DateFrom         *time.Time
	DateTo           *time.Time
}

// GenerationResult summarises a bulk session generation run.
type GenerationResult struct {
	Created int `json:"created"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
}
