package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

type scheduleRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Schedule, error)
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	Create(ctx context.Context, schedule *models.Schedule) error
	Update(ctx context.Context, schedule *models.Schedule) error
	Delete(ctx context.Context, id string) error
}

// ScheduleRequest is the create/update payload for a weekly slot.
type ScheduleRequest struct {
	DayOfWeek          int    `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime          string `json:"start_time" validate:"required"`
	EndTime            string `json:"end_time" validate:"required"`
	GraceBeforeMinutes int    `json:"grace_before_minutes" validate:"gte=0,lte=120"`
	GraceAfterMinutes  int    `json:"grace_after_minutes" validate:"gte=0,lte=120"`
}

// ScheduleService owns a course's recurring weekly slots.
type ScheduleService struct {
	repo      scheduleRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService constructs the schedule service.
func NewScheduleService(repo scheduleRepository, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{repo: repo, validator: validate, logger: logger}
}

// ListByCourse returns a course's weekly slots.
func (s *ScheduleService) ListByCourse(ctx context.Context, courseID string) ([]models.Schedule, error) {
	schedules, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	return schedules, nil
}

// Create stores a new weekly slot for a course.
func (s *ScheduleService) Create(ctx context.Context, courseID string, req ScheduleRequest) (*models.Schedule, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	schedule := &models.Schedule{
		CourseID:           courseID,
		DayOfWeek:          req.DayOfWeek,
		StartTime:          req.StartTime,
		EndTime:            req.EndTime,
		GraceBeforeMinutes: req.GraceBeforeMinutes,
		GraceAfterMinutes:  req.GraceAfterMinutes,
	}
	if err := s.repo.Create(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
	}
	return schedule, nil
}

// Update modifies an existing weekly slot.
func (s *ScheduleService) Update(ctx context.Context, id string, req ScheduleRequest) (*models.Schedule, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	schedule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	schedule.DayOfWeek = req.DayOfWeek
	schedule.StartTime = req.StartTime
	schedule.EndTime = req.EndTime
	schedule.GraceBeforeMinutes = req.GraceBeforeMinutes
	schedule.GraceAfterMinutes = req.GraceAfterMinutes
	if err := s.repo.Update(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
	}
	return schedule, nil
}

// Delete removes a weekly slot. Sessions already materialized from it stay.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule")
	}
	return nil
}

func (s *ScheduleService) validate(req ScheduleRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	start, err := models.ParseClock(req.StartTime)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid start time")
	}
	end, err := models.ParseClock(req.EndTime)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid end time")
	}
	if end <= start {
		return appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}
	return nil
}
