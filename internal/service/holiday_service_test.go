package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

type holidayStoreStub struct {
	holidays map[string]*models.Holiday
	deleted  []string
}

func (s *holidayStoreStub) List(ctx context.Context) ([]models.Holiday, error) {
	var out []models.Holiday
	for _, holiday := range s.holidays {
		out = append(out, *holiday)
	}
	return out, nil
}

func (s *holidayStoreStub) FindByID(ctx context.Context, id string) (*models.Holiday, error) {
	if holiday, ok := s.holidays[id]; ok {
		return holiday, nil
	}
	return nil, sql.ErrNoRows
}

func (s *holidayStoreStub) Create(ctx context.Context, holiday *models.Holiday) error {
	if s.holidays == nil {
		s.holidays = make(map[string]*models.Holiday)
	}
	holiday.ID = fmt.Sprintf("hol-%d", len(s.holidays)+1)
	s.holidays[holiday.ID] = holiday
	return nil
}

func (s *holidayStoreStub) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	delete(s.holidays, id)
	return nil
}

type holidaySessionStub struct {
	cancelReturn  int
	restoreReturn int
	cancelledOn   []time.Time
	restoredOn    []time.Time
}

func (s *holidaySessionStub) CancelByDate(ctx context.Context, date time.Time) (int, error) {
	s.cancelledOn = append(s.cancelledOn, date)
	return s.cancelReturn, nil
}

func (s *holidaySessionStub) RestoreByDate(ctx context.Context, date time.Time) (int, error) {
	s.restoredOn = append(s.restoredOn, date)
	return s.restoreReturn, nil
}

func TestHolidayCreateCancelsSessions(t *testing.T) {
	store := &holidayStoreStub{}
	sessions := &holidaySessionStub{cancelReturn: 4}
	svc := NewHolidayService(store, sessions, nil, nil, nil)

	result, err := svc.Create(context.Background(), CreateHolidayRequest{
		Date: "2026-04-23",
		Name: "National Sovereignty Day",
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.SessionsAffected)
	require.NotNil(t, result.Holiday)
	assert.Equal(t, "National Sovereignty Day", result.Holiday.Name)

	require.Len(t, sessions.cancelledOn, 1)
	assert.Equal(t, "2026-04-23", sessions.cancelledOn[0].Format("2006-01-02"))
}

func TestHolidayCreateRejectsBadDate(t *testing.T) {
	svc := NewHolidayService(&holidayStoreStub{}, &holidaySessionStub{}, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateHolidayRequest{
		Date: "23 April 2026",
		Name: "National Sovereignty Day",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestHolidayDeleteRestoresSessions(t *testing.T) {
	date := time.Date(2026, time.April, 23, 0, 0, 0, 0, time.UTC)
	store := &holidayStoreStub{holidays: map[string]*models.Holiday{
		"hol-1": {ID: "hol-1", Date: date, Name: "National Sovereignty Day"},
	}}
	sessions := &holidaySessionStub{restoreReturn: 4}
	svc := NewHolidayService(store, sessions, nil, nil, nil)

	result, err := svc.Delete(context.Background(), "hol-1")
	require.NoError(t, err)

	assert.Equal(t, 4, result.SessionsAffected)
	assert.Contains(t, store.deleted, "hol-1")
	require.Len(t, sessions.restoredOn, 1)
	assert.True(t, sessions.restoredOn[0].Equal(date))
}

func TestHolidayDeleteUnknown(t *testing.T) {
	svc := NewHolidayService(&holidayStoreStub{}, &holidaySessionStub{}, nil, nil, nil)

	_, err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
