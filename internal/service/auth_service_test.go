package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

type authUsersStub struct {
	users     []*models.User
	lastLogin map[string]time.Time
}

func (s *authUsersStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *authUsersStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *authUsersStub) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if s.lastLogin == nil {
		s.lastLogin = make(map[string]time.Time)
	}
	s.lastLogin[id] = at
	return nil
}

func newAuthFixture(users ...*models.User) (*AuthService, *authUsersStub) {
	repo := &authUsersStub{users: users}
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		Secret:     "test-secret",
		Expiration: time.Hour,
		Issuer:     "qr-attendance-api",
	})
	return svc, repo
}

func instructorUser(t *testing.T) *models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "usr-1",
		Email:        "lecturer@uni.edu.tr",
		Name:         "Dr. Lecturer",
		PasswordHash: string(hash),
		Active:       true,
	}
}

func TestLoginIssuesInstructorToken(t *testing.T) {
	svc, repo := newAuthFixture(instructorUser(t))

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "lecturer@uni.edu.tr",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "usr-1", resp.User.ID)
	assert.Contains(t, repo.lastLogin, "usr-1")

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleInstructor, claims.Role)
	assert.Equal(t, "usr-1", claims.Subject)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(instructorUser(t))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "lecturer@uni.edu.tr",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginRejectsUnknownEmail(t *testing.T) {
	svc, _ := newAuthFixture()

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ghost@uni.edu.tr",
		Password: "whatever",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	user := instructorUser(t)
	user.Active = false
	svc, _ := newAuthFixture(user)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "lecturer@uni.edu.tr",
		Password: "correct-horse",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsStudentToken(t *testing.T) {
	svc, _ := newAuthFixture(instructorUser(t))

	portal := NewPortalService(&portalStudentsStub{}, nil, &portalTokensStub{}, nil, nil, nil, PortalConfig{
		TokenSecret: "test-secret",
	})
	token, err := portal.issueMagicToken(&models.Student{ID: "stu-1", Identifier: "s001"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newAuthFixture()

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
