package models

// AtRiskThreshold is the minimum acceptable attendance percentage.
const AtRiskThreshold = 60

// Matrix cell markers.
const (
	MarkPresent = "P"
	MarkAbsent  = "A"
	MarkExcused = "E"
)

// StudentStats holds one student's attendance standing in a course.
type StudentStats struct {
	StudentID      string `json:"student_id"`
	Identifier     string `json:"identifier"`
	Name           string `json:"name"`
	Attended       int    `json:"attended"`
	Excused        int    `json:"excused"`
	TotalSessions  int    `json:"total_sessions"`
	EffectiveTotal int    `json:"effective_total"`
	Percentage     int    `json:"percentage"`
	AtRisk         bool   `json:"at_risk"`
}

// CourseDashboard aggregates a course's attendance standing.
type CourseDashboard struct {
	CourseID      string         `json:"course_id"`
	TotalStudents int            `json:"total_students"`
	TotalSessions int            `json:"total_sessions"`
	AvgAttendance int            `json:"avg_attendance"`
	Students      []StudentStats `json:"students"`
	AtRisk        []StudentStats `json:"at_risk"`
}

// MatrixColumn labels one session column of the attendance matrix.
type MatrixColumn struct {
	SessionID  string `json:"session_id"`
	Date       string `json:"date"`
	WeekNumber int    `json:"week_number"`
	StartTime  string `json:"start_time"`
}

// MatrixRow is one student's line in the attendance matrix.
type MatrixRow struct {
	StudentID  string   `json:"student_id"`
	Identifier string   `json:"identifier"`
	Name       string   `json:"name"`
	Marks      []string `json:"marks"`
	Attended   int      `json:"attended"`
	Excused    int      `json:"excused"`
	Percentage int      `json:"percentage"`
}

// AttendanceMatrix is the students-by-sessions grid for a course.
type AttendanceMatrix struct {
	CourseID string         `json:"course_id"`
	Columns  []MatrixColumn `json:"columns"`
	Rows     []MatrixRow    `json:"rows"`
}

// PortalCourseStats is one course line on the student dashboard.
type PortalCourseStats struct {
	CourseID       string `json:"course_id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	Attended       int    `json:"attended"`
	Total          int    `json:"total"`
	Excused        int    `json:"excused"`
	EffectiveTotal int    `json:"effective_total"`
	Percentage     int    `json:"percentage"`
	BelowThreshold bool   `json:"below_threshold"`
}

// PortalSessionEntry is one session line on the student course detail page.
type PortalSessionEntry struct {
	Date       string `json:"date"`
	WeekNumber int    `json:"week_number"`
	Attended   bool   `json:"attended"`
	Excused    bool   `json:"excused"`
}
