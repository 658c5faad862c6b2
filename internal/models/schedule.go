package models

import (
	"fmt"
	"time"
)

// Weekday values follow the roster convention: 0=Monday .. 6=Sunday.
const (
	WeekdayMonday = iota
	WeekdayTuesday
	WeekdayWednesday
	WeekdayThursday
	WeekdayFriday
	WeekdaySaturday
	WeekdaySunday
)

// Schedule represents one recurring weekly meeting slot of a course.
type Schedule struct {
	ID                 string    `db:"id" json:"id"`
	CourseID           string    `db:"course_id" json:"course_id"`
	DayOfWeek          int       `db:"day_of_week" json:"day_of_week"`
	StartTime          string    `db:"start_time" json:"start_time"`
	EndTime            string    `db:"end_time" json:"end_time"`
	GraceBeforeMinutes int       `db:"grace_before_minutes" json:"grace_before_minutes"`
	GraceAfterMinutes  int       `db:"grace_after_minutes" json:"grace_after_minutes"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// ParseClock converts an "HH:MM" clock string to minutes since midnight.
func ParseClock(raw string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(raw, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", raw)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// GoWeekday converts a time.Weekday (Sunday=0) to the roster convention (Monday=0).
func GoWeekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}
