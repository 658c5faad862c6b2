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
)

type scoringCourseStub struct {
	courses map[string]*models.Course
}

func (s *scoringCourseStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if course, ok := s.courses[id]; ok {
		return course, nil
	}
	return nil, sql.ErrNoRows
}

type scoringSessionStub struct {
	sessions []models.ClassSession
}

func (s *scoringSessionStub) List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, error) {
	return s.sessions, nil
}

type scoringEnrollmentStub struct {
	roster      []models.EnrollmentDetail
	enrollments []models.Enrollment
}

func (s *scoringEnrollmentStub) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	return s.roster, nil
}

func (s *scoringEnrollmentStub) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	return s.enrollments, nil
}

type scoringAttendanceStub struct {
	pairs    []models.AttendancePair
	attended []string
}

func (s *scoringAttendanceStub) PairsByCourse(ctx context.Context, courseID string) ([]models.AttendancePair, error) {
	return s.pairs, nil
}

func (s *scoringAttendanceStub) AttendedSessionIDs(ctx context.Context, courseID, studentID, identifier string) ([]string, error) {
	return s.attended, nil
}

type scoringExcusedStub struct {
	pairs     []models.ExcusedPair
	byStudent []string
}

func (s *scoringExcusedStub) PairsByCourse(ctx context.Context, courseID string) ([]models.ExcusedPair, error) {
	return s.pairs, nil
}

func (s *scoringExcusedStub) SessionIDsByStudent(ctx context.Context, courseID, studentID string) ([]string, error) {
	return s.byStudent, nil
}

func strPtr(s string) *string {
	return &s
}

func enrollmentEntry(studentID, identifier, name string) models.EnrollmentDetail {
	return models.EnrollmentDetail{
		Enrollment:        models.Enrollment{ID: "enr-" + studentID, StudentID: studentID, CourseID: "c1"},
		StudentIdentifier: identifier,
		StudentName:       name,
	}
}

func scoringSession(id string, week int, day time.Time) models.ClassSession {
	return models.ClassSession{ID: id, CourseID: "c1", Date: day, WeekNumber: week, StartTime: "09:00", EndTime: "11:00"}
}

func newScoringFixture(
	sessions []models.ClassSession,
	roster []models.EnrollmentDetail,
	pairs []models.AttendancePair,
	excused []models.ExcusedPair,
) *ScoringService {
	return NewScoringService(
		&scoringCourseStub{courses: map[string]*models.Course{
			"c1": {ID: "c1", Code: "SE4458", Name: "Software Architecture", Semester: "2026S"},
		}},
		&scoringSessionStub{sessions: sessions},
		&scoringEnrollmentStub{roster: roster},
		&scoringAttendanceStub{pairs: pairs},
		&scoringExcusedStub{pairs: excused},
		nil,
		0,
		nil,
	)
}

func TestPercentage(t *testing.T) {
	cases := []struct {
		name     string
		attended int
		total    int
		excused  int
		want     int
	}{
		{"three quarters", 6, 8, 0, 75},
		{"excused removed from denominator", 6, 10, 2, 75},
		{"half rounds to even above", 7, 8, 0, 88},
		{"half rounds to even below", 1, 8, 0, 12},
		{"excused shrink the denominator", 5, 8, 2, 83},
		{"full attendance", 3, 3, 0, 100},
		{"no sessions", 0, 0, 0, 0},
		{"all sessions excused", 0, 4, 4, 0},
		{"excused exceed total", 2, 3, 5, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Percentage(tc.attended, tc.total, tc.excused))
		})
	}
}

func TestDashboardScores(t *testing.T) {
	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	sessions := []models.ClassSession{
		scoringSession("s1", 1, day),
		scoringSession("s2", 2, day.AddDate(0, 0, 7)),
		scoringSession("s3", 3, day.AddDate(0, 0, 14)),
		scoringSession("s4", 4, day.AddDate(0, 0, 21)),
	}
	roster := []models.EnrollmentDetail{
		enrollmentEntry("stu1", "S001", "Ada Lovelace"),
		enrollmentEntry("stu2", "S002", "Grace Hopper"),
		enrollmentEntry("stu3", "S003", "Alan Turing"),
	}
	pairs := []models.AttendancePair{
		{SessionID: "s1", StudentID: strPtr("stu1"), SubmittedID: "S001"},
		{SessionID: "s2", StudentID: strPtr("stu1"), SubmittedID: "S001"},
		{SessionID: "s3", StudentID: strPtr("stu1"), SubmittedID: "S001"},
		// stu2 submitted before being linked; only the raw identifier matches.
		{SessionID: "s1", StudentID: nil, SubmittedID: "S002"},
		{SessionID: "s2", StudentID: nil, SubmittedID: "S002"},
		{SessionID: "s1", StudentID: strPtr("stu3"), SubmittedID: "S003"},
	}
	excused := []models.ExcusedPair{{StudentID: "stu2", SessionID: "s3"}}

	svc := newScoringFixture(sessions, roster, pairs, excused)
	dashboard, err := svc.Dashboard(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, 3, dashboard.TotalStudents)
	assert.Equal(t, 4, dashboard.TotalSessions)
	require.Len(t, dashboard.Students, 3)

	assert.Equal(t, 75, dashboard.Students[0].Percentage)
	assert.Equal(t, 67, dashboard.Students[1].Percentage)
	assert.Equal(t, 3, dashboard.Students[1].EffectiveTotal)
	assert.Equal(t, 25, dashboard.Students[2].Percentage)

	// The average is the rounded mean of the already-rounded scores.
	assert.Equal(t, 56, dashboard.AvgAttendance)

	require.Len(t, dashboard.AtRisk, 1)
	assert.Equal(t, "stu3", dashboard.AtRisk[0].StudentID)
}

func TestDashboardAtRiskSortedByPercentage(t *testing.T) {
	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	sessions := []models.ClassSession{
		scoringSession("s1", 1, day),
		scoringSession("s2", 2, day.AddDate(0, 0, 7)),
		scoringSession("s3", 3, day.AddDate(0, 0, 14)),
		scoringSession("s4", 4, day.AddDate(0, 0, 21)),
	}
	// Roster order is the reverse of standing: stu1 sits at 50%, stu2 at 25%.
	roster := []models.EnrollmentDetail{
		enrollmentEntry("stu1", "S001", "Ada Lovelace"),
		enrollmentEntry("stu2", "S002", "Grace Hopper"),
	}
	pairs := []models.AttendancePair{
		{SessionID: "s1", StudentID: strPtr("stu1"), SubmittedID: "S001"},
		{SessionID: "s2", StudentID: strPtr("stu1"), SubmittedID: "S001"},
		{SessionID: "s1", StudentID: strPtr("stu2"), SubmittedID: "S002"},
	}

	svc := newScoringFixture(sessions, roster, pairs, nil)
	dashboard, err := svc.Dashboard(context.Background(), "c1")
	require.NoError(t, err)

	require.Len(t, dashboard.AtRisk, 2)
	assert.Equal(t, "stu2", dashboard.AtRisk[0].StudentID)
	assert.Equal(t, 25, dashboard.AtRisk[0].Percentage)
	assert.Equal(t, "stu1", dashboard.AtRisk[1].StudentID)
	assert.Equal(t, 50, dashboard.AtRisk[1].Percentage)
}

func TestMatrixMarkPrecedence(t *testing.T) {
	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	sessions := []models.ClassSession{
		scoringSession("s1", 1, day),
		scoringSession("s2", 2, day.AddDate(0, 0, 7)),
	}
	roster := []models.EnrollmentDetail{enrollmentEntry("stu1", "S001", "Ada Lovelace")}
	pairs := []models.AttendancePair{
		{SessionID: "s1", StudentID: strPtr("stu1"), SubmittedID: "S001"},
		{SessionID: "s2", StudentID: strPtr("stu1"), SubmittedID: "S001"},
	}
	// Excused on a session the student also attended: excused wins.
	excused := []models.ExcusedPair{{StudentID: "stu1", SessionID: "s1"}}

	svc := newScoringFixture(sessions, roster, pairs, excused)
	matrix, err := svc.Matrix(context.Background(), "c1")
	require.NoError(t, err)

	require.Len(t, matrix.Rows, 1)
	row := matrix.Rows[0]
	assert.Equal(t, []string{models.MarkExcused, models.MarkPresent}, row.Marks)
	assert.Equal(t, 1, row.Attended)
	assert.Equal(t, 1, row.Excused)
	assert.Equal(t, 100, row.Percentage)
}

func TestMatrixMatchesRawIdentifier(t *testing.T) {
	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	sessions := []models.ClassSession{scoringSession("s1", 1, day)}
	roster := []models.EnrollmentDetail{enrollmentEntry("stu1", "S001", "Ada Lovelace")}
	pairs := []models.AttendancePair{{SessionID: "s1", StudentID: nil, SubmittedID: "S001"}}

	svc := newScoringFixture(sessions, roster, pairs, nil)
	matrix, err := svc.Matrix(context.Background(), "c1")
	require.NoError(t, err)

	require.Len(t, matrix.Rows, 1)
	assert.Equal(t, []string{models.MarkPresent}, matrix.Rows[0].Marks)
	assert.Equal(t, 100, matrix.Rows[0].Percentage)
}

func TestExportMatrixCSV(t *testing.T) {
	sessions := []models.ClassSession{
		scoringSession("s1", 1, time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)),
		scoringSession("s2", 2, time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)),
	}
	roster := []models.EnrollmentDetail{enrollmentEntry("stu1", "S001", "Ada Lovelace")}
	pairs := []models.AttendancePair{{SessionID: "s1", StudentID: strPtr("stu1"), SubmittedID: "S001"}}

	svc := newScoringFixture(sessions, roster, pairs, nil)
	payload, err := svc.ExportMatrixCSV(context.Background(), "c1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Student ID,Name,W1 03/02,W2 03/09,Attended,Total,Excused,%", lines[0])
	assert.Equal(t, "S001,Ada Lovelace,P,A,1,2,0,50", lines[1])
}

func TestPortalCourseDetail(t *testing.T) {
	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	sessions := []models.ClassSession{
		scoringSession("s1", 1, day),
		scoringSession("s2", 2, day.AddDate(0, 0, 7)),
		scoringSession("s3", 3, day.AddDate(0, 0, 14)),
	}

	svc := NewScoringService(
		&scoringCourseStub{courses: map[string]*models.Course{
			"c1": {ID: "c1", Code: "SE4458", Name: "Software Architecture"},
		}},
		&scoringSessionStub{sessions: sessions},
		&scoringEnrollmentStub{},
		&scoringAttendanceStub{attended: []string{"s1"}},
		&scoringExcusedStub{byStudent: []string{"s2"}},
		nil,
		0,
		nil,
	)

	student := &models.Student{ID: "stu1", Identifier: "S001", Name: "Ada Lovelace"}
	stats, entries, err := svc.PortalCourseDetail(context.Background(), "c1", student)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Attended)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Excused)
	assert.Equal(t, 2, stats.EffectiveTotal)
	assert.Equal(t, 50, stats.Percentage)
	assert.True(t, stats.BelowThreshold)

	require.Len(t, entries, 3)
	assert.True(t, entries[0].Attended)
	assert.True(t, entries[1].Excused)
	assert.False(t, entries[2].Attended)
	assert.False(t, entries[2].Excused)
}
