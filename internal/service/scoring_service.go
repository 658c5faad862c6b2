package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
	"github.com/univlabs/qr-attendance-api/pkg/export"
)

type scoringCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type scoringSessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, error)
}

type scoringEnrollmentRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
}

type scoringAttendanceRepository interface {
	PairsByCourse(ctx context.Context, courseID string) ([]models.AttendancePair, error)
	AttendedSessionIDs(ctx context.Context, courseID, studentID, identifier string) ([]string, error)
}

type scoringExcusedRepository interface {
	PairsByCourse(ctx context.Context, courseID string) ([]models.ExcusedPair, error)
	SessionIDsByStudent(ctx context.Context, courseID, studentID string) ([]string, error)
}

type scoringCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ScoringService computes attendance percentages, course dashboards, the
// students-by-sessions matrix and its CSV/PDF exports, and the student
// portal views. Dashboard and matrix payloads are cached per course.
type ScoringService struct {
	courseRepo     scoringCourseRepository
	sessionRepo    scoringSessionRepository
	enrollmentRepo scoringEnrollmentRepository
	attendanceRepo scoringAttendanceRepository
	excusedRepo    scoringExcusedRepository
	cache          scoringCache
	cacheTTL       time.Duration
	csvExporter    *export.CSVExporter
	pdfExporter    *export.PDFExporter
	logger         *zap.Logger
}

// NewScoringService constructs the scoring service.
func NewScoringService(
	courses scoringCourseRepository,
	sessions scoringSessionRepository,
	enrollments scoringEnrollmentRepository,
	attendance scoringAttendanceRepository,
	excused scoringExcusedRepository,
	cache scoringCache,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *ScoringService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ScoringService{
		courseRepo:     courses,
		sessionRepo:    sessions,
		enrollmentRepo: enrollments,
		attendanceRepo: attendance,
		excusedRepo:    excused,
		cache:          cache,
		cacheTTL:       cacheTTL,
		csvExporter:    export.NewCSVExporter(),
		pdfExporter:    export.NewPDFExporter(),
		logger:         logger,
	}
}

// Percentage computes the attendance score: attended over the effective
// total (sessions minus excused), rounded to the nearest integer with
// ties going to the nearest even value. A non-positive effective total
// scores zero.
func Percentage(attended, total, excused int) int {
	denominator := total - excused
	if denominator <= 0 {
		return 0
	}
	return int(math.RoundToEven(float64(attended) / float64(denominator) * 100))
}

// Dashboard builds the instructor dashboard for a course.
func (s *ScoringService) Dashboard(ctx context.Context, courseID string) (*models.CourseDashboard, error) {
	cacheKey := "scoring:" + courseID + ":dashboard"
	if s.cache != nil {
		var cached models.CourseDashboard
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	sessions, roster, attendedBy, excusedBy, err := s.loadCourseLedger(ctx, courseID)
	if err != nil {
		return nil, err
	}

	dashboard := &models.CourseDashboard{
		CourseID:      courseID,
		TotalStudents: len(roster),
		TotalSessions: len(sessions),
		Students:      make([]models.StudentStats, 0, len(roster)),
	}

	sum := 0
	for _, entry := range roster {
		attended := len(attendedBy[entry.StudentID])
		excused := len(excusedBy[entry.StudentID])
		pct := Percentage(attended, len(sessions), excused)
		stats := models.StudentStats{
			StudentID:      entry.StudentID,
			Identifier:     entry.StudentIdentifier,
			Name:           entry.StudentName,
			Attended:       attended,
			Excused:        excused,
			TotalSessions:  len(sessions),
			EffectiveTotal: len(sessions) - excused,
			Percentage:     pct,
			AtRisk:         pct < models.AtRiskThreshold,
		}
		dashboard.Students = append(dashboard.Students, stats)
		if stats.AtRisk {
			dashboard.AtRisk = append(dashboard.AtRisk, stats)
		}
		sum += pct
	}
	if len(roster) > 0 {
		// The course average is the mean of already-rounded scores.
		dashboard.AvgAttendance = int(math.RoundToEven(float64(sum) / float64(len(roster))))
	}
	sort.SliceStable(dashboard.AtRisk, func(i, j int) bool {
		return dashboard.AtRisk[i].Percentage < dashboard.AtRisk[j].Percentage
	})

	s.store(ctx, cacheKey, dashboard)
	return dashboard, nil
}

// Matrix builds the students-by-sessions grid. Excused wins over present,
// present over absent.
func (s *ScoringService) Matrix(ctx context.Context, courseID string) (*models.AttendanceMatrix, error) {
	cacheKey := "scoring:" + courseID + ":matrix"
	if s.cache != nil {
		var cached models.AttendanceMatrix
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	sessions, roster, attendedBy, excusedBy, err := s.loadCourseLedger(ctx, courseID)
	if err != nil {
		return nil, err
	}

	matrix := &models.AttendanceMatrix{
		CourseID: courseID,
		Columns:  make([]models.MatrixColumn, 0, len(sessions)),
		Rows:     make([]models.MatrixRow, 0, len(roster)),
	}
	for _, session := range sessions {
		matrix.Columns = append(matrix.Columns, models.MatrixColumn{
			SessionID:  session.ID,
			Date:       session.Date.Format("2006-01-02"),
			WeekNumber: session.WeekNumber,
			StartTime:  session.StartTime,
		})
	}

	for _, entry := range roster {
		attended := attendedBy[entry.StudentID]
		excused := excusedBy[entry.StudentID]
		row := models.MatrixRow{
			StudentID:  entry.StudentID,
			Identifier: entry.StudentIdentifier,
			Name:       entry.StudentName,
			Marks:      make([]string, 0, len(sessions)),
		}
		for _, session := range sessions {
			switch {
			case inSet(excused, session.ID):
				row.Marks = append(row.Marks, models.MarkExcused)
				row.Excused++
			case inSet(attended, session.ID):
				row.Marks = append(row.Marks, models.MarkPresent)
				row.Attended++
			default:
				row.Marks = append(row.Marks, models.MarkAbsent)
			}
		}
		row.Percentage = Percentage(row.Attended, len(sessions), row.Excused)
		matrix.Rows = append(matrix.Rows, row)
	}

	s.store(ctx, cacheKey, matrix)
	return matrix, nil
}

// ExportMatrixCSV renders the matrix as CSV. Session columns are headed
// "W<week> <MM/DD>".
func (s *ScoringService) ExportMatrixCSV(ctx context.Context, courseID string) ([]byte, error) {
	dataset, _, err := s.matrixDataset(ctx, courseID)
	if err != nil {
		return nil, err
	}
	payload, err := s.csvExporter.Render(*dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return payload, nil
}

// ExportMatrixPDF renders the matrix as a tabular PDF titled with the course
// code.
func (s *ScoringService) ExportMatrixPDF(ctx context.Context, courseID string) ([]byte, error) {
	dataset, course, err := s.matrixDataset(ctx, courseID)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("%s %s attendance", course.Code, course.Semester)
	payload, err := s.pdfExporter.Render(*dataset, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return payload, nil
}

func (s *ScoringService) matrixDataset(ctx context.Context, courseID string) (*export.Dataset, *models.Course, error) {
	course, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	matrix, err := s.Matrix(ctx, courseID)
	if err != nil {
		return nil, nil, err
	}

	headers := []string{"Student ID", "Name"}
	sessionHeaders := make([]string, 0, len(matrix.Columns))
	for _, col := range matrix.Columns {
		date, err := time.Parse("2006-01-02", col.Date)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to format session column")
		}
		header := fmt.Sprintf("W%d %s", col.WeekNumber, date.Format("01/02"))
		sessionHeaders = append(sessionHeaders, header)
	}
	headers = append(headers, sessionHeaders...)
	headers = append(headers, "Attended", "Total", "Excused", "%")

	rows := make([]map[string]string, 0, len(matrix.Rows))
	for _, row := range matrix.Rows {
		record := map[string]string{
			"Student ID": row.Identifier,
			"Name":       row.Name,
			"Attended":   fmt.Sprintf("%d", row.Attended),
			"Total":      fmt.Sprintf("%d", len(matrix.Columns)),
			"Excused":    fmt.Sprintf("%d", row.Excused),
			"%":          fmt.Sprintf("%d", row.Percentage),
		}
		for i, header := range sessionHeaders {
			record[header] = row.Marks[i]
		}
		rows = append(rows, record)
	}

	return &export.Dataset{Headers: headers, Rows: rows}, course, nil
}

// PortalDashboard builds the per-course standing list for one student.
func (s *ScoringService) PortalDashboard(ctx context.Context, student *models.Student) ([]models.PortalCourseStats, error) {
	enrollments, err := s.enrollmentRepo.ListByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	stats := make([]models.PortalCourseStats, 0, len(enrollments))
	for _, enrollment := range enrollments {
		course, err := s.courseRepo.FindByID(ctx, enrollment.CourseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
		entry, err := s.portalCourseStats(ctx, course, student)
		if err != nil {
			return nil, err
		}
		stats = append(stats, *entry)
	}
	return stats, nil
}

// PortalCourseDetail builds the session-by-session view for one student in
// one course.
func (s *ScoringService) PortalCourseDetail(ctx context.Context, courseID string, student *models.Student) (*models.PortalCourseStats, []models.PortalSessionEntry, error) {
	course, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	sessions, err := s.sessionRepo.List(ctx, models.SessionFilter{CourseID: courseID})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	attended, err := s.attendanceRepo.AttendedSessionIDs(ctx, courseID, student.ID, student.Identifier)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attended sessions")
	}
	excused, err := s.excusedRepo.SessionIDsByStudent(ctx, courseID, student.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list excused sessions")
	}

	entries := make([]models.PortalSessionEntry, 0, len(sessions))
	for _, session := range sessions {
		entries = append(entries, models.PortalSessionEntry{
			Date:       session.Date.Format("2006-01-02"),
			WeekNumber: session.WeekNumber,
			Attended:   inList(attended, session.ID),
			Excused:    inList(excused, session.ID),
		})
	}

	pct := Percentage(len(attended), len(sessions), len(excused))
	stats := &models.PortalCourseStats{
		CourseID:       course.ID,
		Code:           course.Code,
		Name:           course.Name,
		Attended:       len(attended),
		Total:          len(sessions),
		Excused:        len(excused),
		EffectiveTotal: len(sessions) - len(excused),
		Percentage:     pct,
		BelowThreshold: pct < models.AtRiskThreshold,
	}
	return stats, entries, nil
}

func (s *ScoringService) portalCourseStats(ctx context.Context, course *models.Course, student *models.Student) (*models.PortalCourseStats, error) {
	sessions, err := s.sessionRepo.List(ctx, models.SessionFilter{CourseID: course.ID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	attended, err := s.attendanceRepo.AttendedSessionIDs(ctx, course.ID, student.ID, student.Identifier)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attended sessions")
	}
	excused, err := s.excusedRepo.SessionIDsByStudent(ctx, course.ID, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list excused sessions")
	}

	pct := Percentage(len(attended), len(sessions), len(excused))
	return &models.PortalCourseStats{
		CourseID:       course.ID,
		Code:           course.Code,
		Name:           course.Name,
		Attended:       len(attended),
		Total:          len(sessions),
		Excused:        len(excused),
		EffectiveTotal: len(sessions) - len(excused),
		Percentage:     pct,
		BelowThreshold: pct < models.AtRiskThreshold,
	}, nil
}

// loadCourseLedger loads the course's non-cancelled sessions, roster, and the
// per-student attended/excused session sets. An attendance pair counts for a
// student when its roster link matches or its raw identifier does.
func (s *ScoringService) loadCourseLedger(ctx context.Context, courseID string) (
	[]models.ClassSession,
	[]models.EnrollmentDetail,
	map[string]map[string]struct{},
	map[string]map[string]struct{},
	error,
) {
	sessions, err := s.sessionRepo.List(ctx, models.SessionFilter{CourseID: courseID})
	if err != nil {
		return nil, nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	roster, err := s.enrollmentRepo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	pairs, err := s.attendanceRepo.PairsByCourse(ctx, courseID)
	if err != nil {
		return nil, nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance pairs")
	}
	excusedPairs, err := s.excusedRepo.PairsByCourse(ctx, courseID)
	if err != nil {
		return nil, nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list excused pairs")
	}

	byLink := make(map[string][]models.AttendancePair)
	byIdentifier := make(map[string][]models.AttendancePair)
	for _, pair := range pairs {
		if pair.StudentID != nil {
			byLink[*pair.StudentID] = append(byLink[*pair.StudentID], pair)
		}
		byIdentifier[pair.SubmittedID] = append(byIdentifier[pair.SubmittedID], pair)
	}

	attendedBy := make(map[string]map[string]struct{}, len(roster))
	for _, entry := range roster {
		set := make(map[string]struct{})
		for _, pair := range byLink[entry.StudentID] {
			set[pair.SessionID] = struct{}{}
		}
		for _, pair := range byIdentifier[entry.StudentIdentifier] {
			set[pair.SessionID] = struct{}{}
		}
		attendedBy[entry.StudentID] = set
	}

	excusedBy := make(map[string]map[string]struct{}, len(roster))
	for _, pair := range excusedPairs {
		set := excusedBy[pair.StudentID]
		if set == nil {
			set = make(map[string]struct{})
			excusedBy[pair.StudentID] = set
		}
		set[pair.SessionID] = struct{}{}
	}

	return sessions, roster, attendedBy, excusedBy, nil
}

func (s *ScoringService) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache scoring payload", zap.String("key", key), zap.Error(err))
	}
}

func inSet(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}

func inList(ids []string, id string) bool {
	for _, item := range ids {
		if item == id {
			return true
		}
	}
	return false
}
