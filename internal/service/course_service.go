package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

// CourseRequest is the create/update payload for a course.
type CourseRequest struct {
	Code              string  `json:"code" validate:"required"`
	Name              string  `json:"name" validate:"required"`
	Semester          string  `json:"semester" validate:"required"`
	Lecturer          string  `json:"lecturer"`
	CourseHours       int     `json:"course_hours" validate:"gte=0"`
	SemesterStartDate *string `json:"semester_start_date" validate:"omitempty,datetime=2006-01-02"`
	TotalWeeks        int     `json:"total_weeks" validate:"gte=0,lte=52"`
}

// CourseService owns course CRUD and QR token rotation.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns filtered courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create stores a new course.
func (s *CourseService) Create(ctx context.Context, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course := &models.Course{
		Code:        req.Code,
		Name:        req.Name,
		Semester:    req.Semester,
		Lecturer:    req.Lecturer,
		CourseHours: req.CourseHours,
		TotalWeeks:  req.TotalWeeks,
	}
	if req.SemesterStartDate != nil {
		start, err := time.Parse("2006-01-02", *req.SemesterStartDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid semester start date")
		}
		course.SemesterStartDate = &start
	}
	if err := s.repo.Create(ctx, course); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("code", course.Code))
	return course, nil
}

// Update modifies an existing course.
func (s *CourseService) Update(ctx context.Context, id string, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	course.Code = req.Code
	course.Name = req.Name
	course.Semester = req.Semester
	course.Lecturer = req.Lecturer
	course.CourseHours = req.CourseHours
	course.TotalWeeks = req.TotalWeeks
	course.SemesterStartDate = nil
	if req.SemesterStartDate != nil {
		start, err := time.Parse("2006-01-02", *req.SemesterStartDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid semester start date")
		}
		course.SemesterStartDate = &start
	}
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// RotateQRToken replaces the course's scannable token, invalidating printed
// codes.
func (s *CourseService) RotateQRToken(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	course.QRToken = uuid.NewString()
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate qr token")
	}
	s.logger.Info("qr token rotated", zap.String("course_id", course.ID))
	return course, nil
}

// Delete removes a course and its dependents.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}
