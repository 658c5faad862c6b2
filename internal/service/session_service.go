package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

type sessionListRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, error)
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
}

// SessionService exposes read access to materialized class sessions.
type SessionService struct {
	repo   sessionListRepository
	logger *zap.Logger
}

// NewSessionService constructs the session service.
func NewSessionService(repo sessionListRepository, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, logger: logger}
}

// ListByCourse returns a course's sessions in date order.
func (s *SessionService) ListByCourse(ctx context.Context, courseID string, includeCancelled bool, from, to *time.Time) ([]models.ClassSession, error) {
	sessions, err := s.repo.List(ctx, models.SessionFilter{
		CourseID:         courseID,
		IncludeCancelled: includeCancelled,
		DateFrom:         from,
		DateTo:           to,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// Get loads one session.
func (s *SessionService) Get(ctx context.Context, id string) (*models.ClassSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}
