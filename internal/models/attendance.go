package models

import "time"

// AttendanceRecord is one accepted submission for a session. Two uniqueness
// keys guard it: (session, submitted_id) and (session, origin_address).
type AttendanceRecord struct {
	ID            string    `db:"id" json:"id"`
	SessionID     string    `db:"session_id" json:"session_id"`
	StudentID     *string   `db:"student_id" json:"student_id,omitempty"`
	SubmittedID   string    `db:"submitted_id" json:"submitted_id"`
	OriginAddress string    `db:"origin_address" json:"origin_address"`
	UserAgent     string    `db:"user_agent" json:"user_agent"`
	SubmittedAt   time.Time `db:"submitted_at" json:"submitted_at"`
}

// AttendancePair links a session to the identity that attended it. StudentID
// carries the resolved roster link when one existed at submission time;
// SubmittedID always carries the raw identifier.
type AttendancePair struct {
	SessionID   string  `db:"session_id"`
	StudentID   *string `db:"student_id"`
	SubmittedID string  `db:"submitted_id"`
}

// ExcusedAbsence marks a student as excused for one session.
type ExcusedAbsence struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	SessionID string    `db:"session_id" json:"session_id"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ExcusedPair is the (student, session) key of an excused absence.
type ExcusedPair struct {
	StudentID string `db:"student_id"`
	SessionID string `db:"session_id"`
}
