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

// ExcusedAbsenceRepository persists excused absences.
type ExcusedAbsenceRepository struct {
	db *sqlx.DB
}

// NewExcusedAbsenceRepository constructs the repository.
func NewExcusedAbsenceRepository(db *sqlx.DB) *ExcusedAbsenceRepository {
	return &ExcusedAbsenceRepository{db: db}
}

// Create stores an excused absence; at most one exists per (student, session).
func (r *ExcusedAbsenceRepository) Create(ctx context.Context, absence *models.ExcusedAbsence) error {
	if absence.ID == "" {
		absence.ID = uuid.NewString()
	}
	absence.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO excused_absences (id, student_id, session_id, reason, created_at)
VALUES (:id, :student_id, :session_id, :reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, absence); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return appErrors.Clone(appErrors.ErrConflict, "student is already excused for this session")
		}
		return fmt.Errorf("insert excused absence: %w", err)
	}
	return nil
}

// Delete removes an excused absence by id.
func (r *ExcusedAbsenceRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM excused_absences WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete excused absence: %w", err)
	}
	return nil
}

// PairsByCourse returns all (student, session) excused pairs over the
// course's non-cancelled sessions.
func (r *ExcusedAbsenceRepository) PairsByCourse(ctx context.Context, courseID string) ([]models.ExcusedPair, error) {
	const query = `SELECT ea.student_id, ea.session_id
FROM excused_absences ea
JOIN class_sessions cs ON cs.id = ea.session_id
WHERE cs.course_id = $1 AND cs.is_cancelled = FALSE`
	var pairs []models.ExcusedPair
	if err := r.db.SelectContext(ctx, &pairs, query, courseID); err != nil {
		return nil, fmt.Errorf("list excused pairs: %w", err)
	}
	return pairs, nil
}

// SessionIDsByStudent returns ids of the course's non-cancelled sessions the
// student is excused from.
func (r *ExcusedAbsenceRepository) SessionIDsByStudent(ctx context.Context, courseID, studentID string) ([]string, error) {
	const query = `SELECT ea.session_id
FROM excused_absences ea
JOIN class_sessions cs ON cs.id = ea.session_id
WHERE cs.course_id = $1 AND cs.is_cancelled = FALSE AND ea.student_id = $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID, studentID); err != nil {
		return nil, fmt.Errorf("list excused sessions: %w", err)
	}
	return ids, nil
}
