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

type stubCourseRepo struct {
	course *models.Course
}

func (s *stubCourseRepo) FindByQRToken(ctx context.Context, token string) (*models.Course, error) {
	if s.course == nil || s.course.QRToken != token {
		return nil, sql.ErrNoRows
	}
	return s.course, nil
}

func (s *stubCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if s.course == nil || s.course.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.course, nil
}

type stubScheduleRepo struct {
	schedules []models.Schedule
}

func (s *stubScheduleRepo) ListByCourse(ctx context.Context, courseID string) ([]models.Schedule, error) {
	return s.schedules, nil
}

func (s *stubScheduleRepo) ListByCourseAndDay(ctx context.Context, courseID string, dayOfWeek int) ([]models.Schedule, error) {
	var matched []models.Schedule
	for _, schedule := range s.schedules {
		if schedule.DayOfWeek == dayOfWeek {
			matched = append(matched, schedule)
		}
	}
	return matched, nil
}

type stubSessionRepo struct {
	sessions     map[string]*models.ClassSession
	earliest     *time.Time
	deleteReturn int
	created      int
}

func sessionKey(courseID string, date time.Time, startTime string) string {
	return fmt.Sprintf("%s|%s|%s", courseID, date.Format("2006-01-02"), startTime)
}

func (s *stubSessionRepo) GetOrCreate(ctx context.Context, session *models.ClassSession) (*models.ClassSession, bool, error) {
	if s.sessions == nil {
		s.sessions = make(map[string]*models.ClassSession)
	}
	key := sessionKey(session.CourseID, session.Date, session.StartTime)
	if existing, ok := s.sessions[key]; ok {
		return existing, false, nil
	}
	stored := *session
	stored.ID = fmt.Sprintf("session-%d", len(s.sessions)+1)
	s.sessions[key] = &stored
	s.created++
	return &stored, true, nil
}

func (s *stubSessionRepo) EarliestDate(ctx context.Context, courseID string) (*time.Time, error) {
	return s.earliest, nil
}

func (s *stubSessionRepo) DeleteWithoutRecords(ctx context.Context, courseID string) (int, error) {
	return s.deleteReturn, nil
}

type stubHolidayRepo struct {
	dates map[string]struct{}
}

func (s *stubHolidayRepo) ExistsByDate(ctx context.Context, date time.Time) (bool, error) {
	_, ok := s.dates[date.Format("2006-01-02")]
	return ok, nil
}

func (s *stubHolidayRepo) DatesBetween(ctx context.Context, from, to time.Time) (map[string]struct{}, error) {
	if s.dates == nil {
		return map[string]struct{}{}, nil
	}
	return s.dates, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// 2026-02-23 is a Monday; 2026-03-10 is a Tuesday in week 3.
var semesterStart2026 = time.Date(2026, time.February, 23, 0, 0, 0, 0, time.UTC)

func tuesdayCourse() (*models.Course, []models.Schedule) {
	course := &models.Course{
		ID:                "c1",
		Code:              "SE4458",
		QRToken:           "tok-se4458",
		SemesterStartDate: timePtr(semesterStart2026),
	}
	schedules := []models.Schedule{{
		ID:                 "sch-1",
		CourseID:           "c1",
		DayOfWeek:          models.WeekdayTuesday,
		StartTime:          "09:00",
		EndTime:            "11:00",
		GraceBeforeMinutes: 5,
		GraceAfterMinutes:  5,
	}}
	return course, schedules
}

func newResolverFixture(course *models.Course, schedules []models.Schedule) (*ResolverService, *stubSessionRepo) {
	sessions := &stubSessionRepo{}
	svc := NewResolverService(
		&stubCourseRepo{course: course},
		&stubScheduleRepo{schedules: schedules},
		sessions,
		&stubHolidayRepo{},
		time.UTC,
		ResolverConfig{},
		nil,
	)
	return svc, sessions
}

func TestResolverWindowBoundaries(t *testing.T) {
	cases := []struct {
		name   string
		hour   int
		minute int
		active bool
	}{
		{"just before grace opens", 8, 54, false},
		{"grace opens", 8, 55, true},
		{"class start", 9, 0, true},
		{"grace closes", 11, 5, true},
		{"just after grace closes", 11, 6, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			course, schedules := tuesdayCourse()
			svc, _ := newResolverFixture(course, schedules)

			now := time.Date(2026, time.March, 10, tc.hour, tc.minute, 0, 0, time.UTC)
			view, err := svc.ResolveByToken(context.Background(), "tok-se4458", now)
			require.NoError(t, err)

			assert.Equal(t, tc.active, view.Active)
			if tc.active {
				require.NotNil(t, view.Session)
				assert.Equal(t, 3, view.Session.WeekNumber)
				require.NotNil(t, view.Schedule)
				assert.Equal(t, "sch-1", view.Schedule.ID)
			} else {
				assert.Nil(t, view.Session)
				require.NotNil(t, view.Next)
				assert.Equal(t, models.WeekdayTuesday, view.Next.DayOfWeek)
				assert.Equal(t, "09:00", view.Next.StartTime)
			}
		})
	}
}

func TestResolverMaterializesSessionOnce(t *testing.T) {
	course, schedules := tuesdayCourse()
	svc, sessions := newResolverFixture(course, schedules)

	now := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
	first, err := svc.ResolveByToken(context.Background(), "tok-se4458", now)
	require.NoError(t, err)
	second, err := svc.ResolveByToken(context.Background(), "tok-se4458", now.Add(20*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 1, sessions.created)
	assert.Equal(t, first.Session.ID, second.Session.ID)
}

func TestResolverCancelledSlot(t *testing.T) {
	course, schedules := tuesdayCourse()
	svc, sessions := newResolverFixture(course, schedules)

	today := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	sessions.sessions = map[string]*models.ClassSession{
		sessionKey("c1", today, "09:00"): {
			ID:          "session-cancelled",
			CourseID:    "c1",
			Date:        today,
			WeekNumber:  3,
			StartTime:   "09:00",
			EndTime:     "11:00",
			IsCancelled: true,
		},
	}

	view, err := svc.ResolveByToken(context.Background(), "tok-se4458", today.Add(9*time.Hour+30*time.Minute))
	require.NoError(t, err)

	assert.True(t, view.Cancelled)
	assert.False(t, view.Active)
	assert.Nil(t, view.Session)
	require.NotNil(t, view.Next)
	assert.Equal(t, models.WeekdayTuesday, view.Next.DayOfWeek)
}

func TestResolverUnknownToken(t *testing.T) {
	course, schedules := tuesdayCourse()
	svc, _ := newResolverFixture(course, schedules)

	_, err := svc.ResolveByToken(context.Background(), "tok-unknown", time.Now())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestResolverWeekNumberFallsBackToEarliestSession(t *testing.T) {
	course, schedules := tuesdayCourse()
	course.SemesterStartDate = nil
	svc, sessions := newResolverFixture(course, schedules)
	sessions.earliest = timePtr(time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC))

	now := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
	view, err := svc.ResolveByToken(context.Background(), "tok-se4458", now)
	require.NoError(t, err)
	require.NotNil(t, view.Session)
	assert.Equal(t, 2, view.Session.WeekNumber)
}

func TestResolverWeekNumberDefaultsToOne(t *testing.T) {
	course, schedules := tuesdayCourse()
	course.SemesterStartDate = nil
	svc, _ := newResolverFixture(course, schedules)

	now := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
	view, err := svc.ResolveByToken(context.Background(), "tok-se4458", now)
	require.NoError(t, err)
	require.NotNil(t, view.Session)
	assert.Equal(t, 1, view.Session.WeekNumber)
}

func TestResolverNextMeetingWrapsWeek(t *testing.T) {
	course, _ := tuesdayCourse()
	schedules := []models.Schedule{
		{ID: "sch-mon", CourseID: "c1", DayOfWeek: models.WeekdayMonday, StartTime: "09:00", EndTime: "11:00"},
		{ID: "sch-wed", CourseID: "c1", DayOfWeek: models.WeekdayWednesday, StartTime: "13:00", EndTime: "15:00"},
	}
	svc, _ := newResolverFixture(course, schedules)

	// Thursday: both weekly slots are behind us, so the hint wraps to Monday.
	now := time.Date(2026, time.March, 12, 10, 0, 0, 0, time.UTC)
	view, err := svc.ResolveByToken(context.Background(), "tok-se4458", now)
	require.NoError(t, err)

	assert.False(t, view.Active)
	require.NotNil(t, view.Next)
	assert.Equal(t, models.WeekdayMonday, view.Next.DayOfWeek)
	assert.Equal(t, "09:00", view.Next.StartTime)
}

func TestResolverHolidayBlocksScan(t *testing.T) {
	course, schedules := tuesdayCourse()
	sessions := &stubSessionRepo{}
	svc := NewResolverService(
		&stubCourseRepo{course: course},
		&stubScheduleRepo{schedules: schedules},
		sessions,
		&stubHolidayRepo{dates: map[string]struct{}{"2026-03-10": {}}},
		time.UTC,
		ResolverConfig{HolidayCheckOnScan: true},
		nil,
	)

	now := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
	view, err := svc.ResolveByToken(context.Background(), "tok-se4458", now)
	require.NoError(t, err)

	assert.False(t, view.Active)
	assert.True(t, view.Cancelled)
	assert.Equal(t, 0, sessions.created)
	require.NotNil(t, view.Next)
}
