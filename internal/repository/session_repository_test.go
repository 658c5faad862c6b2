package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univlabs/qr-attendance-api/internal/models"
)

func newSessionMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sessionRows(id string, date time.Time) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "course_id", "date", "week_number", "start_time", "end_time", "is_cancelled", "created_at", "updated_at"}).
		AddRow(id, "c1", date, 3, "09:00", "11:00", false, now, now)
}

func TestSessionRepositoryGetOrCreateInserts(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	date := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO class_sessions").
		WithArgs(sqlmock.AnyArg(), "c1", date, 3, "09:00", "11:00", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sessionRows("sess-1", date))

	session, created, err := repo.GetOrCreate(context.Background(), &models.ClassSession{
		CourseID:   "c1",
		Date:       date,
		WeekNumber: 3,
		StartTime:  "09:00",
		EndTime:    "11:00",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "sess-1", session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryGetOrCreateReselectsOnConflict(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	date := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	// ON CONFLICT DO NOTHING yields no row for the loser of the race.
	mock.ExpectQuery("INSERT INTO class_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "date", "week_number", "start_time", "end_time", "is_cancelled", "created_at", "updated_at"}))
	mock.ExpectQuery("SELECT id, course_id, date, week_number, start_time, end_time, is_cancelled, created_at, updated_at FROM class_sessions WHERE course_id = \\$1 AND date = \\$2 AND start_time = \\$3").
		WithArgs("c1", date, "09:00").
		WillReturnRows(sessionRows("sess-existing", date))

	session, created, err := repo.GetOrCreate(context.Background(), &models.ClassSession{
		CourseID:   "c1",
		Date:       date,
		WeekNumber: 3,
		StartTime:  "09:00",
		EndTime:    "11:00",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "sess-existing", session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryEarliestDateEmpty(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT date FROM class_sessions").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"date"}))

	date, err := repo.EarliestDate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, date)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCancelByDate(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	date := time.Date(2026, time.April, 23, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE class_sessions SET is_cancelled = TRUE").
		WithArgs(date, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 5))

	affected, err := repo.CancelByDate(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, 5, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDeleteWithoutRecords(t *testing.T) {
	db, mock, cleanup := newSessionMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("DELETE FROM class_sessions").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 12))

	deleted, err := repo.DeleteWithoutRecords(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 12, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
