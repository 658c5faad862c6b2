package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

type holidayRepository interface {
	List(ctx context.Context) ([]models.Holiday, error)
	FindByID(ctx context.Context, id string) (*models.Holiday, error)
	Create(ctx context.Context, holiday *models.Holiday) error
	Delete(ctx context.Context, id string) error
}

type holidaySessionRepository interface {
	CancelByDate(ctx context.Context, date time.Time) (int, error)
	RestoreByDate(ctx context.Context, date time.Time) (int, error)
}

// CreateHolidayRequest declares a new calendar exception.
type CreateHolidayRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Name string `json:"name" validate:"required"`
}

// HolidayService owns calendar exceptions. Adding a holiday cancels every
// already-materialized session on that date across all courses; removing it
// restores them.
type HolidayService struct {
	holidayRepo holidayRepository
	sessionRepo holidaySessionRepository
	cache       ledgerCacheInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewHolidayService constructs the holiday service.
func NewHolidayService(
	holidays holidayRepository,
	sessions holidaySessionRepository,
	cache ledgerCacheInvalidator,
	validate *validator.Validate,
	logger *zap.Logger,
) *HolidayService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HolidayService{
		holidayRepo: holidays,
		sessionRepo: sessions,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// List returns all holidays in date order.
func (s *HolidayService) List(ctx context.Context) ([]models.Holiday, error) {
	holidays, err := s.holidayRepo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list holidays")
	}
	return holidays, nil
}

// Create stores a holiday and cancels every session already on its date.
func (s *HolidayService) Create(ctx context.Context, req CreateHolidayRequest) (*models.HolidayMutationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid holiday payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid holiday date")
	}

	holiday := &models.Holiday{Date: date, Name: req.Name}
	if err := s.holidayRepo.Create(ctx, holiday); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create holiday")
	}

	cancelled, err := s.sessionRepo.CancelByDate(ctx, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel sessions on holiday")
	}

	s.invalidateScoring(ctx)
	s.logger.Info("holiday created",
		zap.String("date", req.Date),
		zap.String("name", req.Name),
		zap.Int("sessions_cancelled", cancelled))
	return &models.HolidayMutationResult{Holiday: holiday, SessionsAffected: cancelled}, nil
}

// Delete removes a holiday and restores the sessions it had cancelled.
func (s *HolidayService) Delete(ctx context.Context, id string) (*models.HolidayMutationResult, error) {
	holiday, err := s.holidayRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "holiday not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load holiday")
	}

	if err := s.holidayRepo.Delete(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete holiday")
	}

	restored, err := s.sessionRepo.RestoreByDate(ctx, holiday.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore sessions")
	}

	s.invalidateScoring(ctx)
	s.logger.Info("holiday removed",
		zap.String("date", holiday.Date.Format("2006-01-02")),
		zap.Int("sessions_restored", restored))
	return &models.HolidayMutationResult{SessionsAffected: restored}, nil
}

func (s *HolidayService) invalidateScoring(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "scoring:*"); err != nil {
		s.logger.Warn("failed to invalidate scoring cache", zap.Error(err))
	}
}
