package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

type rosterStudentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	UpdateEmail(ctx context.Context, id, email string) error
	Delete(ctx context.Context, id string) error
}

// StudentRequest is the create/update payload for a student.
type StudentRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
}

// RosterService owns the student roster.
type RosterService struct {
	repo      rosterStudentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRosterService constructs the roster service.
func NewRosterService(repo rosterStudentRepository, validate *validator.Validate, logger *zap.Logger) *RosterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{repo: repo, validator: validate, logger: logger}
}

// List returns filtered students with pagination metadata.
func (s *RosterService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one student.
func (s *RosterService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create stores a new student.
func (s *RosterService) Create(ctx context.Context, req StudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student := &models.Student{
		Identifier: strings.TrimSpace(req.Identifier),
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
	}
	if err := s.repo.Create(ctx, student); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update modifies a student record.
func (s *RosterService) Update(ctx context.Context, id string, req StudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	student.Identifier = strings.TrimSpace(req.Identifier)
	student.Name = strings.TrimSpace(req.Name)
	student.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.repo.Update(ctx, student); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// UpdateContact sets only the student's contact email.
func (s *RosterService) UpdateContact(ctx context.Context, id, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return appErrors.Clone(appErrors.ErrValidation, "email is required")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.UpdateEmail(ctx, id, email); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update contact email")
	}
	return nil
}

// Delete removes a student from the roster.
func (s *RosterService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}
