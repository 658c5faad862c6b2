package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

// Unique constraint names on attendance_records, used to classify conflicts.
const (
	constraintSessionIdentifier = "attendance_records_session_id_submitted_id_key"
	constraintSessionOrigin     = "attendance_records_session_id_origin_address_key"
)

const attendanceColumns = "id, session_id, student_id, submitted_id, origin_address, user_agent, submitted_at"

// AttendanceRepository persists accepted attendance submissions.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// ExistsByOrigin reports whether the session already has a record from the
// origin address.
func (r *AttendanceRepository) ExistsByOrigin(ctx context.Context, sessionID, origin string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM attendance_records WHERE session_id = $1 AND origin_address = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, sessionID, origin); err != nil {
		return false, fmt.Errorf("check origin uniqueness: %w", err)
	}
	return exists, nil
}

// ExistsByIdentifier reports whether the session already has a record for the
// submitted identifier.
func (r *AttendanceRepository) ExistsByIdentifier(ctx context.Context, sessionID, submittedID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM attendance_records WHERE session_id = $1 AND submitted_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, sessionID, submittedID); err != nil {
		return false, fmt.Errorf("check identifier uniqueness: %w", err)
	}
	return exists, nil
}

// Insert stores a new record. Both uniqueness keys are re-checked by the
// database; a violation is mapped back to the matching domain rejection so a
// concurrent duplicate cannot slip between check and create.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.SubmittedAt = time.Now().UTC()

	const query = `INSERT INTO attendance_records (id, session_id, student_id, submitted_id, origin_address, user_agent, submitted_at)
VALUES (:id, :session_id, :student_id, :submitted_id, :origin_address, :user_agent, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case constraintSessionOrigin:
				return appErrors.ErrDuplicateOrigin
			case constraintSessionIdentifier:
				return appErrors.ErrDuplicateIdentifier
			}
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "duplicate attendance record")
		}
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

// ListBySession returns a session's records ordered by submission time.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	const query = `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE session_id = $1 ORDER BY submitted_at ASC`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	return records, nil
}

// PairsByCourse returns every (session, identity) attendance pair over the
// course's non-cancelled sessions. Both the resolved roster link and the raw
// submitted identifier travel with each pair so scoring can match on either.
func (r *AttendanceRepository) PairsByCourse(ctx context.Context, courseID string) ([]models.AttendancePair, error) {
	const query = `SELECT ar.session_id, ar.student_id, ar.submitted_id
FROM attendance_records ar
JOIN class_sessions cs ON cs.id = ar.session_id
WHERE cs.course_id = $1 AND cs.is_cancelled = FALSE`
	var pairs []models.AttendancePair
	if err := r.db.SelectContext(ctx, &pairs, query, courseID); err != nil {
		return nil, fmt.Errorf("list attendance pairs: %w", err)
	}
	return pairs, nil
}

// AttendedSessionIDs returns the ids of the course's non-cancelled sessions a
// student attended, matching either the resolved link or the raw identifier.
func (r *AttendanceRepository) AttendedSessionIDs(ctx context.Context, courseID, studentID, identifier string) ([]string, error) {
	const query = `SELECT DISTINCT ar.session_id
FROM attendance_records ar
JOIN class_sessions cs ON cs.id = ar.session_id
WHERE cs.course_id = $1 AND cs.is_cancelled = FALSE
  AND (ar.student_id = $2 OR ar.submitted_id = $3)`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID, studentID, identifier); err != nil {
		return nil, fmt.Errorf("list attended sessions: %w", err)
	}
	return ids, nil
}
