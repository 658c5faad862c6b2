package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univlabs/qr-attendance-api/internal/models"
)

const scheduleColumns = "id, course_id, day_of_week, start_time, end_time, grace_before_minutes, grace_after_minutes, created_at, updated_at"

// ScheduleRepository provides persistence for recurring weekly schedules.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ListByCourse returns a course's schedules ordered by day and start time.
func (r *ScheduleRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Schedule, error) {
	const query = `SELECT ` + scheduleColumns + ` FROM schedules WHERE course_id = $1 ORDER BY day_of_week ASC, start_time ASC`
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, courseID); err != nil {
		return nil, fmt.Errorf("list schedules by course: %w", err)
	}
	return schedules, nil
}

// ListByCourseAndDay returns the course's schedules on a given weekday.
func (r *ScheduleRepository) ListByCourseAndDay(ctx context.Context, courseID string, dayOfWeek int) ([]models.Schedule, error) {
	const query = `SELECT ` + scheduleColumns + ` FROM schedules WHERE course_id = $1 AND day_of_week = $2 ORDER BY start_time ASC`
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, courseID, dayOfWeek); err != nil {
		return nil, fmt.Errorf("list schedules by day: %w", err)
	}
	return schedules, nil
}

// FindByID loads a schedule by id.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	const query = `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`
	var schedule models.Schedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// Create stores a new schedule record.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	const query = `INSERT INTO schedules (id, course_id, day_of_week, start_time, end_time, grace_before_minutes, grace_after_minutes, created_at, updated_at)
VALUES (:id, :course_id, :day_of_week, :start_time, :end_time, :grace_before_minutes, :grace_after_minutes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// Update modifies a schedule record.
func (r *ScheduleRepository) Update(ctx context.Context, schedule *models.Schedule) error {
	schedule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedules SET day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time, grace_before_minutes = :grace_before_minutes, grace_after_minutes = :grace_after_minutes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// Delete removes a schedule by id.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}
