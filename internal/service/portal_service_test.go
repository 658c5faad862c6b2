package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
	"github.com/univlabs/qr-attendance-api/pkg/jobs"
)

type portalStudentsStub struct {
	students   []*models.Student
	backfilled map[string]string
}

func (s *portalStudentsStub) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	for _, student := range s.students {
		if student.Email != "" && strings.EqualFold(student.Email, email) {
			return student, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *portalStudentsStub) FindByIdentifier(ctx context.Context, identifier string) (*models.Student, error) {
	for _, student := range s.students {
		if strings.EqualFold(student.Identifier, identifier) {
			return student, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *portalStudentsStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	for _, student := range s.students {
		if student.ID == id {
			return student, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *portalStudentsStub) UpdateContact(ctx context.Context, id, email string) error {
	if s.backfilled == nil {
		s.backfilled = make(map[string]string)
	}
	s.backfilled[id] = email
	return nil
}

type portalTokensStub struct {
	seen map[string]bool
}

func (s *portalTokensStub) Create(ctx context.Context, tokenHash string) (bool, error) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[tokenHash] {
		return false, nil
	}
	s.seen[tokenHash] = true
	return true, nil
}

type mailStub struct {
	jobs []jobs.Job
}

func (s *mailStub) Enqueue(job jobs.Job) error {
	s.jobs = append(s.jobs, job)
	return nil
}

func newPortalFixture(students ...*models.Student) (*PortalService, *portalStudentsStub, *mailStub) {
	roster := &portalStudentsStub{students: students}
	mail := &mailStub{}
	svc := NewPortalService(roster, roster, &portalTokensStub{}, mail, nil, nil, PortalConfig{
		TokenSecret:    "test-secret",
		TokenTTL:       15 * time.Minute,
		SessionTTL:     time.Hour,
		AllowedDomains: []string{".edu.tr"},
		BaseURL:        "https://attend.example.edu.tr",
		Issuer:         "qr-attendance-api",
	})
	return svc, roster, mail
}

func TestRequestLinkRejectsForeignDomain(t *testing.T) {
	svc, _, mail := newPortalFixture(&models.Student{ID: "stu-1", Identifier: "s001", Email: "s001@gmail.com"})

	_, err := svc.RequestLink(context.Background(), LinkRequest{Email: "s001@gmail.com"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, mail.jobs)
}

func TestRequestLinkMasksEmailAndQueuesMail(t *testing.T) {
	svc, _, mail := newPortalFixture(&models.Student{
		ID: "stu-1", Identifier: "s001", Name: "Ada Lovelace", Email: "s001@uni.edu.tr",
	})

	result, err := svc.RequestLink(context.Background(), LinkRequest{Email: "S001@uni.edu.tr"})
	require.NoError(t, err)

	assert.Equal(t, "s***@uni.edu.tr", result.MaskedEmail)
	assert.Equal(t, 900, result.ExpiresIn)

	require.Len(t, mail.jobs, 1)
	assert.Equal(t, "portal_magic_link", mail.jobs[0].Type)
	payload, ok := mail.jobs[0].Payload.(MagicLinkMail)
	require.True(t, ok)
	assert.Equal(t, "s001@uni.edu.tr", payload.To)
	assert.Contains(t, payload.Link, "https://attend.example.edu.tr/portal/verify?token=")
}

func TestRequestLinkFallsBackToIdentifier(t *testing.T) {
	svc, roster, mail := newPortalFixture(&models.Student{
		ID: "stu-2", Identifier: "s002", Name: "Grace Hopper",
	})

	result, err := svc.RequestLink(context.Background(), LinkRequest{Email: "s002@uni.edu.tr"})
	require.NoError(t, err)

	assert.Equal(t, "s***@uni.edu.tr", result.MaskedEmail)
	assert.Equal(t, "s002@uni.edu.tr", roster.backfilled["stu-2"])
	require.Len(t, mail.jobs, 1)
}

func TestRequestLinkUnknownStudent(t *testing.T) {
	svc, _, _ := newPortalFixture()

	_, err := svc.RequestLink(context.Background(), LinkRequest{Email: "ghost@uni.edu.tr"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestVerifyMagicTokenIsSingleUse(t *testing.T) {
	student := &models.Student{ID: "stu-1", Identifier: "s001", Name: "Ada Lovelace", Email: "s001@uni.edu.tr"}
	svc, _, _ := newPortalFixture(student)

	token, err := svc.issueMagicToken(student)
	require.NoError(t, err)

	session, err := svc.VerifyMagicToken(context.Background(), token)
	require.NoError(t, err)
	assert.NotEmpty(t, session.SessionToken)
	assert.Equal(t, "stu-1", session.Student.ID)
	assert.True(t, session.ExpiresAt.After(time.Now()))

	_, err = svc.VerifyMagicToken(context.Background(), token)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "already been used")
}

func TestVerifyMagicTokenRejectsGarbage(t *testing.T) {
	svc, _, _ := newPortalFixture()

	_, err := svc.VerifyMagicToken(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestSessionTokenRoundTrip(t *testing.T) {
	student := &models.Student{ID: "stu-1", Identifier: "s001", Name: "Ada Lovelace", Email: "s001@uni.edu.tr"}
	svc, _, _ := newPortalFixture(student)

	token, err := svc.issueMagicToken(student)
	require.NoError(t, err)
	session, err := svc.VerifyMagicToken(context.Background(), token)
	require.NoError(t, err)

	claims, err := svc.ValidateSessionToken(session.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.Subject)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "s001", claims.StudentIdentifier)

	loaded, err := svc.Student(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, student.ID, loaded.ID)
}

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"student@uni.edu.tr", "s***@uni.edu.tr"},
		{"x@y", "x***@y"},
		{"not-an-email", "***"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MaskEmail(tc.in))
	}
}
