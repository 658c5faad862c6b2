package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

func newAttendanceMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAttendanceRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance_records").
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.AttendanceRecord{
		SessionID:     "sess-1",
		SubmittedID:   "S001",
		OriginAddress: "10.0.0.7",
		UserAgent:     "test-agent",
	}
	err := repo.Insert(context.Background(), record)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.SubmittedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertMapsConstraintViolations(t *testing.T) {
	cases := []struct {
		name       string
		constraint string
		want       error
	}{
		{"duplicate origin", constraintSessionOrigin, appErrors.ErrDuplicateOrigin},
		{"duplicate identifier", constraintSessionIdentifier, appErrors.ErrDuplicateIdentifier},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, cleanup := newAttendanceMock(t)
			defer cleanup()
			repo := NewAttendanceRepository(db)

			mock.ExpectExec("INSERT INTO attendance_records").
				WillReturnError(&pq.Error{Code: "23505", Constraint: tc.constraint})

			err := repo.Insert(context.Background(), &models.AttendanceRecord{
				SessionID:     "sess-1",
				SubmittedID:   "S001",
				OriginAddress: "10.0.0.7",
			})
			require.ErrorIs(t, err, tc.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAttendanceRepositoryExistsByOrigin(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("sess-1", "10.0.0.7").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByOrigin(context.Background(), "sess-1", "10.0.0.7")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryAttendedSessionIDs(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("SELECT DISTINCT ar.session_id").
		WithArgs("c1", "stu-1", "S001").
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow("sess-1").AddRow("sess-3"))

	ids, err := repo.AttendedSessionIDs(context.Background(), "c1", "stu-1", "S001")
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1", "sess-3"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
