package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univlabs/qr-attendance-api/internal/models"
)

const courseColumns = "id, code, name, slug, qr_token, semester, lecturer, course_hours, semester_start_date, total_weeks, created_at, updated_at"

// CourseRepository provides persistence for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new course repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses with roster/session counts, optionally filtered.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, int, error) {
	base := "FROM courses c"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Semester != "" {
		where = append(where, fmt.Sprintf("c.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(c.code ILIKE $%d OR c.name ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.code, c.name, c.slug, c.qr_token, c.semester, c.lecturer, c.course_hours, c.semester_start_date, c.total_weeks, c.created_at, c.updated_at,
        (SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id) AS student_count,
        (SELECT COUNT(*) FROM class_sessions cs WHERE cs.course_id = c.id AND cs.is_cancelled = FALSE) AS session_count
        %s WHERE %s ORDER BY c.semester DESC, c.code ASC LIMIT %d OFFSET %d`, base, whereClause, size, offset)

	var courses []models.CourseSummary
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID loads a course by id.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByQRToken loads the course behind a scanned QR token.
func (r *CourseRepository) FindByQRToken(ctx context.Context, token string) (*models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE qr_token = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, token); err != nil {
		return nil, err
	}
	return &course, nil
}

// Create stores a new course, assigning id, QR token and slug when absent.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.QRToken == "" {
		course.QRToken = uuid.NewString()
	}
	if course.Slug == "" {
		course.Slug = Slugify(course.Code + "-" + course.Semester)
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, code, name, slug, qr_token, semester, lecturer, course_hours, semester_start_date, total_weeks, created_at, updated_at)
VALUES (:id, :code, :name, :slug, :qr_token, :semester, :lecturer, :course_hours, :semester_start_date, :total_weeks, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update modifies a course record.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET code = :code, name = :name, qr_token = :qr_token, semester = :semester, lecturer = :lecturer, course_hours = :course_hours, semester_start_date = :semester_start_date, total_weeks = :total_weeks, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course; schedules, sessions and enrollments cascade.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// Slugify lowercases and dash-joins a label for URL use.
func Slugify(raw string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
