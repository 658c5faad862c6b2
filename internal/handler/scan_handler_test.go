package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univlabs/qr-attendance-api/internal/models"
	"github.com/univlabs/qr-attendance-api/internal/service"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

type scanCourseStub struct {
	course *models.Course
}

func (s *scanCourseStub) FindByQRToken(ctx context.Context, token string) (*models.Course, error) {
	if s.course == nil || s.course.QRToken != token {
		return nil, sql.ErrNoRows
	}
	return s.course, nil
}

func (s *scanCourseStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if s.course == nil || s.course.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.course, nil
}

type scanScheduleStub struct {
	schedules []models.Schedule
}

func (s *scanScheduleStub) ListByCourse(ctx context.Context, courseID string) ([]models.Schedule, error) {
	return s.schedules, nil
}

func (s *scanScheduleStub) ListByCourseAndDay(ctx context.Context, courseID string, dayOfWeek int) ([]models.Schedule, error) {
	var matched []models.Schedule
	for _, schedule := range s.schedules {
		if schedule.DayOfWeek == dayOfWeek {
			matched = append(matched, schedule)
		}
	}
	return matched, nil
}

type scanSessionStub struct {
	session *models.ClassSession
}

func (s *scanSessionStub) GetOrCreate(ctx context.Context, session *models.ClassSession) (*models.ClassSession, bool, error) {
	if s.session != nil {
		return s.session, false, nil
	}
	stored := *session
	stored.ID = "sess-1"
	s.session = &stored
	return &stored, true, nil
}

func (s *scanSessionStub) EarliestDate(ctx context.Context, courseID string) (*time.Time, error) {
	return nil, nil
}

type scanHolidayStub struct{}

func (s *scanHolidayStub) ExistsByDate(ctx context.Context, date time.Time) (bool, error) {
	return false, nil
}

type scanRecordsStub struct {
	identifierTaken bool
	originTaken     bool
	inserted        []*models.AttendanceRecord
}

func (s *scanRecordsStub) ExistsByOrigin(ctx context.Context, sessionID, origin string) (bool, error) {
	return s.originTaken, nil
}

func (s *scanRecordsStub) ExistsByIdentifier(ctx context.Context, sessionID, submittedID string) (bool, error) {
	return s.identifierTaken, nil
}

func (s *scanRecordsStub) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	record.ID = "rec-1"
	s.inserted = append(s.inserted, record)
	return nil
}

func (s *scanRecordsStub) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	return nil, nil
}

type scanRosterStub struct{}

func (s *scanRosterStub) FindByIdentifier(ctx context.Context, identifier string) (*models.Student, error) {
	return nil, sql.ErrNoRows
}

type scanExcusedStub struct{}

func (s *scanExcusedStub) Create(ctx context.Context, absence *models.ExcusedAbsence) error {
	return nil
}

func (s *scanExcusedStub) Delete(ctx context.Context, id string) error {
	return nil
}

type scanEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// The stub schedule covers the whole day so the session is always active at
// test time.
func newScanRouter(records *scanRecordsStub) *gin.Engine {
	gin.SetMode(gin.TestMode)

	course := &models.Course{ID: "c1", Code: "SE4458", QRToken: "tok-1"}
	schedules := []models.Schedule{{
		ID:        "sch-1",
		CourseID:  "c1",
		DayOfWeek: models.GoWeekday(time.Now().UTC().Weekday()),
		StartTime: "00:00",
		EndTime:   "23:59",
	}}

	resolver := service.NewResolverService(
		&scanCourseStub{course: course},
		&scanScheduleStub{schedules: schedules},
		&scanSessionStub{},
		&scanHolidayStub{},
		time.UTC,
		service.ResolverConfig{},
		nil,
	)
	attendance := service.NewAttendanceService(
		resolver,
		records,
		&scanRosterStub{},
		&scanExcusedStub{},
		nil,
		nil,
		nil,
	)
	handler := NewScanHandler(resolver, attendance, nil)

	r := gin.New()
	r.GET("/a/:qrToken", handler.Scan)
	r.POST("/a/:qrToken/submit", handler.Submit)
	return r
}

func TestScanHandlerScan(t *testing.T) {
	r := newScanRouter(&scanRecordsStub{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/a/tok-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope scanEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Data["active"])
}

func TestScanHandlerScanUnknownToken(t *testing.T) {
	r := newScanRouter(&scanRecordsStub{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/a/tok-unknown", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScanHandlerSubmitAccepted(t *testing.T) {
	records := &scanRecordsStub{}
	r := newScanRouter(records)

	body := strings.NewReader(`{"identifier":"S001"}`)
	req := httptest.NewRequest(http.MethodPost, "/a/tok-1/submit", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, records.inserted, 1)
	assert.Equal(t, "S001", records.inserted[0].SubmittedID)
	assert.Equal(t, "test-agent", records.inserted[0].UserAgent)

	var envelope scanEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, false, envelope.Data["linked"])
}

func TestScanHandlerSubmitEmptyIdentifier(t *testing.T) {
	r := newScanRouter(&scanRecordsStub{})

	body := strings.NewReader(`{"identifier":"  "}`)
	req := httptest.NewRequest(http.MethodPost, "/a/tok-1/submit", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope scanEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrEmptyIdentifier.Code, envelope.Error.Code)
}

func TestScanHandlerSubmitDuplicateIdentifier(t *testing.T) {
	r := newScanRouter(&scanRecordsStub{identifierTaken: true})

	body := strings.NewReader(`{"identifier":"S001"}`)
	req := httptest.NewRequest(http.MethodPost, "/a/tok-1/submit", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var envelope scanEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrDuplicateIdentifier.Code, envelope.Error.Code)
}

func TestSubmissionOutcome(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{appErrors.ErrEmptyIdentifier, "empty_identifier"},
		{appErrors.ErrDuplicateOrigin, "duplicate_origin"},
		{appErrors.ErrDuplicateIdentifier, "duplicate_identifier"},
		{appErrors.ErrSessionCancelled, "session_cancelled"},
		{appErrors.ErrNoActiveSession, "no_active_session"},
		{appErrors.ErrInternal, "error"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, submissionOutcome(tc.err))
	}
}
