package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

type ledgerRepository interface {
	ExistsByOrigin(ctx context.Context, sessionID, origin string) (bool, error)
	ExistsByIdentifier(ctx context.Context, sessionID, submittedID string) (bool, error)
	Insert(ctx context.Context, record *models.AttendanceRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
}

type ledgerStudentRepository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*models.Student, error)
}

type ledgerResolver interface {
	ResolveByToken(ctx context.Context, qrToken string, now time.Time) (*ScanView, error)
}

type ledgerExcusedRepository interface {
	Create(ctx context.Context, absence *models.ExcusedAbsence) error
	Delete(ctx context.Context, id string) error
}

type ledgerCacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// SubmitRequest is one attendance submission from a scanned device.
type SubmitRequest struct {
	QRToken       string `json:"-"`
	Identifier    string `json:"identifier" validate:"required"`
	OriginAddress string `json:"-"`
	UserAgent     string `json:"-"`
}

// SubmitResult reports an accepted submission back to the device.
type SubmitResult struct {
	Record   *models.AttendanceRecord `json:"record"`
	Session  *models.ClassSession     `json:"session"`
	Course   *models.Course           `json:"course"`
	Linked   bool                     `json:"linked"`
	FullName string                   `json:"full_name,omitempty"`
}

// AttendanceService owns the submission ledger: one record per identifier and
// per origin address within a session, enforced in order before a single
// insert that the database re-checks.
type AttendanceService struct {
	resolver  ledgerResolver
	records   ledgerRepository
	students  ledgerStudentRepository
	excused   ledgerExcusedRepository
	cache     ledgerCacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(
	resolver ledgerResolver,
	records ledgerRepository,
	students ledgerStudentRepository,
	excused ledgerExcusedRepository,
	cache ledgerCacheInvalidator,
	validate *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		resolver:  resolver,
		records:   records,
		students:  students,
		excused:   excused,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// Submit runs the full submission state machine. Rejections happen in a fixed
// order: empty identifier, cancelled session, no active session, missing
// origin, duplicate origin, duplicate identifier. The roster link is best
// effort; an unknown identifier is still recorded.
func (s *AttendanceService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		return nil, appErrors.ErrEmptyIdentifier
	}

	view, err := s.resolver.ResolveByToken(ctx, req.QRToken, time.Now())
	if err != nil {
		return nil, err
	}
	if view.Cancelled {
		return nil, appErrors.ErrSessionCancelled
	}
	if !view.Active || view.Session == nil {
		return nil, appErrors.ErrNoActiveSession
	}
	session := view.Session

	// Every transport that reaches this point carries a client address; a
	// blank one would collide on the per-session origin constraint instead
	// of deduplicating real devices.
	origin := strings.TrimSpace(req.OriginAddress)
	if origin == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "missing origin address")
	}

	taken, err := s.records.ExistsByOrigin(ctx, session.ID, origin)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check submission origin")
	}
	if taken {
		return nil, appErrors.ErrDuplicateOrigin
	}

	taken, err = s.records.ExistsByIdentifier(ctx, session.ID, identifier)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check submission identifier")
	}
	if taken {
		return nil, appErrors.ErrDuplicateIdentifier
	}

	record := &models.AttendanceRecord{
		SessionID:     session.ID,
		SubmittedID:   identifier,
		OriginAddress: origin,
		UserAgent:     req.UserAgent,
	}

	result := &SubmitResult{Session: session, Course: view.Course}
	student, err := s.students.FindByIdentifier(ctx, identifier)
	switch {
	case err == nil:
		record.StudentID = &student.ID
		result.Linked = true
		result.FullName = student.Name
	case errors.Is(err, sql.ErrNoRows):
		// Unknown identifiers are accepted and matched later by raw value.
	default:
		s.logger.Warn("roster lookup failed during submission", zap.String("identifier", identifier), zap.Error(err))
	}

	if err := s.records.Insert(ctx, record); err != nil {
		return nil, err
	}
	result.Record = record

	s.invalidateCourse(ctx, session.CourseID)

	s.logger.Info("attendance recorded",
		zap.String("session_id", session.ID),
		zap.String("course_id", session.CourseID),
		zap.Bool("linked", result.Linked))
	return result, nil
}

// ListBySession returns a session's accepted records.
func (s *AttendanceService) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	records, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance records")
	}
	return records, nil
}

// ExcuseRequest marks a student excused for one session.
type ExcuseRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
	Reason    string `json:"reason"`
}

// Excuse records an excused absence for a (student, session) pair.
func (s *AttendanceService) Excuse(ctx context.Context, courseID string, req ExcuseRequest) (*models.ExcusedAbsence, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid excuse payload")
	}
	absence := &models.ExcusedAbsence{
		StudentID: req.StudentID,
		SessionID: req.SessionID,
		Reason:    req.Reason,
	}
	if err := s.excused.Create(ctx, absence); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record excused absence")
	}
	s.invalidateCourse(ctx, courseID)
	return absence, nil
}

// RemoveExcuse deletes an excused absence.
func (s *AttendanceService) RemoveExcuse(ctx context.Context, courseID, absenceID string) error {
	if err := s.excused.Delete(ctx, absenceID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove excused absence")
	}
	s.invalidateCourse(ctx, courseID)
	return nil
}

func (s *AttendanceService) invalidateCourse(ctx context.Context, courseID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "scoring:"+courseID+":*"); err != nil {
		s.logger.Warn("failed to invalidate scoring cache", zap.String("course_id", courseID), zap.Error(err))
	}
}
