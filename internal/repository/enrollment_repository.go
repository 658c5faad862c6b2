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

// EnrollmentRepository persists student-course enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListByCourse returns the course roster with student identity, ordered by
// identifier.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_id, e.midterm_grade, e.final_grade, e.created_at, e.updated_at,
       s.identifier AS student_identifier, s.name AS student_name
FROM enrollments e
JOIN students s ON s.id = e.student_id
WHERE e.course_id = $1
ORDER BY s.identifier ASC`
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrollments by course: %w", err)
	}
	return details, nil
}

// ListByStudent returns a student's enrollments.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, midterm_grade, final_grade, created_at, updated_at
FROM enrollments WHERE student_id = $1`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollments by student: %w", err)
	}
	return enrollments, nil
}

// FindByStudentCourse loads the enrollment linking a student to a course.
func (r *EnrollmentRepository) FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, midterm_grade, final_grade, created_at, updated_at
FROM enrollments WHERE student_id = $1 AND course_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Create enrolls a student in a course; the pair is unique.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	const query = `INSERT INTO enrollments (id, student_id, course_id, midterm_grade, final_grade, created_at, updated_at)
VALUES (:id, :student_id, :course_id, :midterm_grade, :final_grade, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this course")
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateGrades sets midterm and final grades on an enrollment. Nil values
// clear the corresponding grade.
func (r *EnrollmentRepository) UpdateGrades(ctx context.Context, id string, midterm, final *float64) error {
	const query = `UPDATE enrollments SET midterm_grade = $2, final_grade = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, midterm, final, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment grades: %w", err)
	}
	return nil
}

// Delete removes an enrollment by id.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}
