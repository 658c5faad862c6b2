package models

import "time"

// Holiday is a calendar exception: no class meets on this date.
type Holiday struct {
	ID        string    `db:"id" json:"id"`
	Date      time.Time `db:"date" json:"date"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HolidayMutationResult reports how many sessions a holiday change touched.
type HolidayMutationResult struct {
	Holiday          *Holiday `json:"holiday,omitempty"`
	SessionsAffected int      `json:"sessions_affected"`
}
