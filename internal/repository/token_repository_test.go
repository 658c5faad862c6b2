package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTokenRepositoryCreateFresh(t *testing.T) {
	db, mock, cleanup := newTokenMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("INSERT INTO used_tokens").
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := repo.Create(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryCreateBurnedToken(t *testing.T) {
	db, mock, cleanup := newTokenMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("INSERT INTO used_tokens").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "used_tokens_token_hash_key"})

	created, err := repo.Create(context.Background(), "abc123")
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Software Architecture & Design", "software-architecture-design"},
		{"SE4458", "se4458"},
		{"  --  ", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slugify(tc.in))
	}
}
