package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

const studentColumns = "id, identifier, name, email, created_at, updated_at"

// StudentRepository provides persistence for roster students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the filter with a total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students s"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.CourseID != "" {
		base += " JOIN enrollments e ON e.student_id = s.id"
		where = append(where, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(s.identifier ILIKE $%d OR s.name ILIKE $%d OR s.email ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT s.id, s.identifier, s.name, s.email, s.created_at, s.updated_at %s WHERE %s ORDER BY s.identifier ASC LIMIT %d OFFSET %d",
		base, whereClause, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID loads a student by id.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByIdentifier loads a student by the school identifier.
func (r *StudentRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.Student, error) {
	const query = `SELECT ` + studentColumns + ` FROM students WHERE identifier = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, identifier); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByEmail loads a student by email, case-insensitively.
func (r *StudentRepository) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	const query = `SELECT ` + studentColumns + ` FROM students WHERE LOWER(email) = LOWER($1)`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, email); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create stores a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, identifier, name, email, created_at, updated_at)
VALUES (:id, :identifier, :name, :email, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return appErrors.Clone(appErrors.ErrConflict, "a student with this identifier already exists")
		}
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies a student record.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET identifier = :identifier, name = :name, email = :email, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return appErrors.Clone(appErrors.ErrConflict, "a student with this identifier already exists")
		}
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// UpdateEmail sets only the student's contact email.
func (r *StudentRepository) UpdateEmail(ctx context.Context, id, email string) error {
	const query = `UPDATE students SET email = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, email, time.Now().UTC()); err != nil {
		return fmt.Errorf("update student email: %w", err)
	}
	return nil
}

// Delete removes a student; enrollments and excused absences cascade.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}
