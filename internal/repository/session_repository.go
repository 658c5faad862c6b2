package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univlabs/qr-attendance-api/internal/models"
)

const sessionColumns = "id, course_id, date, week_number, start_time, end_time, is_cancelled, created_at, updated_at"

// SessionRepository provides persistence for concrete class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// GetOrCreate materializes the session for (course, date, start_time) exactly
// once. Concurrent callers race on the unique key; the loser reselects and
// returns the winner's row. The created flag reports whether this call
// inserted the row.
func (r *SessionRepository) GetOrCreate(ctx context.Context, session *models.ClassSession) (*models.ClassSession, bool, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	const insert = `INSERT INTO class_sessions (id, course_id, date, week_number, start_time, end_time, is_cancelled, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (course_id, date, start_time) DO NOTHING
RETURNING ` + sessionColumns
	var stored models.ClassSession
	err := r.db.GetContext(ctx, &stored, insert,
		session.ID, session.CourseID, session.Date, session.WeekNumber,
		session.StartTime, session.EndTime, session.IsCancelled,
		session.CreatedAt, session.UpdatedAt)
	if err == nil {
		return &stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert class session: %w", err)
	}

	existing, err := r.FindByKey(ctx, session.CourseID, session.Date, session.StartTime)
	if err != nil {
		return nil, false, fmt.Errorf("reselect class session after conflict: %w", err)
	}
	return existing, false, nil
}

// FindByKey loads the session identified by its uniqueness key.
func (r *SessionRepository) FindByKey(ctx context.Context, courseID string, date time.Time, startTime string) (*models.ClassSession, error) {
	const query = `SELECT ` + sessionColumns + ` FROM class_sessions WHERE course_id = $1 AND date = $2 AND start_time = $3`
	var session models.ClassSession
	if err := r.db.GetContext(ctx, &session, query, courseID, date, startTime); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByID loads a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	const query = `SELECT ` + sessionColumns + ` FROM class_sessions WHERE id = $1`
	var session models.ClassSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns sessions matching the filter ordered by date and start time.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, error) {
	where := []string{"course_id = $1"}
	args := []interface{}{filter.CourseID}
	if !filter.IncludeCancelled {
		where = append(where, "is_cancelled = FALSE")
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	query := fmt.Sprintf("SELECT %s FROM class_sessions WHERE %s ORDER BY date ASC, start_time ASC", sessionColumns, strings.Join(where, " AND "))
	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list class sessions: %w", err)
	}
	return sessions, nil
}

// EarliestDate returns the date of the earliest session for a course, or nil
// when the course has no sessions yet.
func (r *SessionRepository) EarliestDate(ctx context.Context, courseID string) (*time.Time, error) {
	const query = `SELECT date FROM class_sessions WHERE course_id = $1 ORDER BY date ASC LIMIT 1`
	var date time.Time
	if err := r.db.GetContext(ctx, &date, query, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("earliest session date: %w", err)
	}
	return &date, nil
}

// CountByCourse counts non-cancelled sessions for a course.
func (r *SessionRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM class_sessions WHERE course_id = $1 AND is_cancelled = FALSE`
	var total int
	if err := r.db.GetContext(ctx, &total, query, courseID); err != nil {
		return 0, fmt.Errorf("count class sessions: %w", err)
	}
	return total, nil
}

// CancelByDate flags every non-cancelled session on the date, across all
// courses, and returns how many rows changed.
func (r *SessionRepository) CancelByDate(ctx context.Context, date time.Time) (int, error) {
	const query = `UPDATE class_sessions SET is_cancelled = TRUE, updated_at = $2 WHERE date = $1 AND is_cancelled = FALSE`
	res, err := r.db.ExecContext(ctx, query, date, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cancel sessions by date: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// RestoreByDate reverses CancelByDate for the given date.
func (r *SessionRepository) RestoreByDate(ctx context.Context, date time.Time) (int, error) {
	const query = `UPDATE class_sessions SET is_cancelled = FALSE, updated_at = $2 WHERE date = $1 AND is_cancelled = TRUE`
	res, err := r.db.ExecContext(ctx, query, date, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("restore sessions by date: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// DeleteWithoutRecords removes the course's sessions that have no attendance
// records and returns the number deleted. Sessions with any recorded
// attendance are never touched.
func (r *SessionRepository) DeleteWithoutRecords(ctx context.Context, courseID string) (int, error) {
	const query = `DELETE FROM class_sessions
WHERE course_id = $1
  AND NOT EXISTS (SELECT 1 FROM attendance_records ar WHERE ar.session_id = class_sessions.id)`
	res, err := r.db.ExecContext(ctx, query, courseID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions without records: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}
