package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
	"github.com/univlabs/qr-attendance-api/pkg/jobs"
)

type portalStudentRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type portalContactUpdater interface {
	UpdateContact(ctx context.Context, id, email string) error
}

type portalTokenRepository interface {
	Create(ctx context.Context, tokenHash string) (bool, error)
}

type mailDispatcher interface {
	Enqueue(job jobs.Job) error
}

// PortalConfig defines magic-link issuance parameters.
type PortalConfig struct {
	TokenSecret    string
	TokenTTL       time.Duration
	SessionTTL     time.Duration
	AllowedDomains []string
	BaseURL        string
	Issuer         string
}

// MagicLinkMail is the payload handed to the mail queue.
type MagicLinkMail struct {
	To   string `json:"to"`
	Name string `json:"name"`
	Link string `json:"link"`
}

// LinkRequestResult acknowledges a magic-link request without exposing the
// full address.
type LinkRequestResult struct {
	MaskedEmail string `json:"masked_email"`
	ExpiresIn   int    `json:"expires_in_seconds"`
}

// PortalSession is an authenticated portal login.
type PortalSession struct {
	SessionToken string          `json:"session_token"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Student      *models.Student `json:"student"`
}

// PortalService runs the student magic-link flow: request a link by
// institutional email, verify it once, and hold a short session.
type PortalService struct {
	students  portalStudentRepository
	contacts  portalContactUpdater
	tokens    portalTokenRepository
	mail      mailDispatcher
	validator *validator.Validate
	logger    *zap.Logger
	config    PortalConfig
}

// NewPortalService constructs the portal service.
func NewPortalService(
	students portalStudentRepository,
	contacts portalContactUpdater,
	tokens portalTokenRepository,
	mail mailDispatcher,
	validate *validator.Validate,
	logger *zap.Logger,
	config PortalConfig,
) *PortalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 15 * time.Minute
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 12 * time.Hour
	}
	return &PortalService{
		students:  students,
		contacts:  contacts,
		tokens:    tokens,
		mail:      mail,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// LinkRequest asks for a magic link by email.
type LinkRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestLink issues a single-use login link to a roster student's
// institutional email. When the address is unknown, the local part is tried
// as a student identifier; a hit backfills the student's stored email.
func (s *PortalService) RequestLink(ctx context.Context, req LinkRequest) (*LinkRequestResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid email payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !s.domainAllowed(email) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "email must belong to an allowed institutional domain")
	}

	student, err := s.students.FindByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		localPart := email[:strings.Index(email, "@")]
		student, err = s.students.FindByIdentifier(ctx, localPart)
		if err == nil && s.contacts != nil && !strings.EqualFold(student.Email, email) {
			if updateErr := s.contacts.UpdateContact(ctx, student.ID, email); updateErr != nil {
				s.logger.Warn("failed to backfill student email", zap.String("student_id", student.ID), zap.Error(updateErr))
			} else {
				student.Email = email
			}
		}
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no student matches this email")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up student")
	}

	token, err := s.issueMagicToken(student)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign magic token")
	}
	link := fmt.Sprintf("%s/portal/verify?token=%s", strings.TrimRight(s.config.BaseURL, "/"), token)

	if s.mail != nil {
		job := jobs.Job{
			ID:      uuid.NewString(),
			Type:    "portal_magic_link",
			Payload: MagicLinkMail{To: email, Name: student.Name, Link: link},
		}
		if err := s.mail.Enqueue(job); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue magic link mail")
		}
	}

	s.logger.Info("magic link requested", zap.String("student_id", student.ID))
	return &LinkRequestResult{
		MaskedEmail: MaskEmail(email),
		ExpiresIn:   int(s.config.TokenTTL.Seconds()),
	}, nil
}

// VerifyMagicToken consumes a magic link exactly once and opens a portal
// session. A token stays burned even after its signature would have expired.
func (s *PortalService) VerifyMagicToken(ctx context.Context, rawToken string) (*PortalSession, error) {
	claims, err := s.parsePortalToken(rawToken)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256([]byte(rawToken))
	fresh, err := s.tokens.Create(ctx, hex.EncodeToString(digest[:]))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record token use")
	}
	if !fresh {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "this link has already been used")
	}

	student, err := s.students.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "student no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.config.SessionTTL)
	sessionToken, err := s.signClaims(models.JWTClaims{
		Role:              models.RoleStudent,
		StudentIdentifier: student.Identifier,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   student.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign session token")
	}

	s.logger.Info("portal session opened", zap.String("student_id", student.ID))
	return &PortalSession{SessionToken: sessionToken, ExpiresAt: expiresAt, Student: student}, nil
}

// ValidateSessionToken parses and verifies a portal session token.
func (s *PortalService) ValidateSessionToken(tokenString string) (*models.JWTClaims, error) {
	return s.parsePortalToken(tokenString)
}

// Student loads the roster student behind validated portal claims.
func (s *PortalService) Student(ctx context.Context, claims *models.JWTClaims) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "student no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *PortalService) domainAllowed(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if len(s.config.AllowedDomains) == 0 {
		return true
	}
	domain := email[at+1:]
	for _, allowed := range s.config.AllowedDomains {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if domain == strings.TrimPrefix(allowed, ".") || strings.HasSuffix(domain, allowed) {
			return true
		}
	}
	return false
}

func (s *PortalService) issueMagicToken(student *models.Student) (string, error) {
	now := time.Now().UTC()
	return s.signClaims(models.JWTClaims{
		Role:              models.RoleStudent,
		StudentIdentifier: student.Identifier,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   student.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
		},
	})
}

func (s *PortalService) signClaims(claims models.JWTClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.TokenSecret))
}

func (s *PortalService) parsePortalToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.TokenSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	if claims.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student token required")
	}
	return claims, nil
}

// MaskEmail hides most of the local part: "s***@example.edu.tr".
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
