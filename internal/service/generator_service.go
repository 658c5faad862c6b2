package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

type generatorSessionRepository interface {
	GetOrCreate(ctx context.Context, session *models.ClassSession) (*models.ClassSession, bool, error)
	DeleteWithoutRecords(ctx context.Context, courseID string) (int, error)
}

type generatorHolidayRepository interface {
	DatesBetween(ctx context.Context, from, to time.Time) (map[string]struct{}, error)
}

// GeneratorService materializes a course's full semester of sessions up
// front from its weekly schedules.
type GeneratorService struct {
	courseRepo        resolverCourseRepository
	scheduleRepo      resolverScheduleRepository
	sessionRepo       generatorSessionRepository
	holidayRepo       generatorHolidayRepository
	cache             ledgerCacheInvalidator
	defaultTotalWeeks int
	logger            *zap.Logger
}

// NewGeneratorService constructs the generator.
func NewGeneratorService(
	courses resolverCourseRepository,
	schedules resolverScheduleRepository,
	sessions generatorSessionRepository,
	holidays generatorHolidayRepository,
	cache ledgerCacheInvalidator,
	defaultTotalWeeks int,
	logger *zap.Logger,
) *GeneratorService {
	if defaultTotalWeeks <= 0 {
		defaultTotalWeeks = 14
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeneratorService{
		courseRepo:        courses,
		scheduleRepo:      schedules,
		sessionRepo:       sessions,
		holidayRepo:       holidays,
		cache:             cache,
		defaultTotalWeeks: defaultTotalWeeks,
		logger:            logger,
	}
}

// GenerateRequest tunes one bulk generation run. StartDate and Weeks
// override the course's semester start date and total weeks when set.
type GenerateRequest struct {
	Regenerate bool   `json:"regenerate"`
	StartDate  string `json:"start_date"`
	Weeks      int    `json:"weeks"`
}

// Generate creates every remaining session for the course's semester.
// Existing sessions are left alone; slots falling on a holiday are skipped.
// When regenerate is set, sessions without any attendance records are
// deleted first so schedule edits take effect.
func (s *GeneratorService) Generate(ctx context.Context, courseID string, req GenerateRequest) (*models.GenerationResult, error) {
	course, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	startDate := course.SemesterStartDate
	if req.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start_date, expected YYYY-MM-DD")
		}
		startDate = &parsed
	}
	if startDate == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course has no semester start date")
	}

	schedules, err := s.scheduleRepo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedules")
	}
	if len(schedules) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course has no weekly schedules")
	}

	if req.Weeks < 0 || req.Weeks > 52 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weeks must be between 1 and 52")
	}
	totalWeeks := req.Weeks
	if totalWeeks == 0 {
		totalWeeks = course.TotalWeeks
	}
	if totalWeeks <= 0 {
		totalWeeks = s.defaultTotalWeeks
	}

	result := &models.GenerationResult{}
	if req.Regenerate {
		deleted, err := s.sessionRepo.DeleteWithoutRecords(ctx, courseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear generated sessions")
		}
		result.Deleted = deleted
	}

	semesterStart := truncateToDay(*startDate)
	semesterEnd := semesterStart.AddDate(0, 0, totalWeeks*7)
	holidays, err := s.holidayRepo.DatesBetween(ctx, semesterStart, semesterEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load holidays")
	}

	for week := 0; week < totalWeeks; week++ {
		weekStart := semesterStart.AddDate(0, 0, week*7)
		weekStartDay := models.GoWeekday(weekStart.Weekday())
		for _, schedule := range schedules {
			daysAhead := (schedule.DayOfWeek - weekStartDay + 7) % 7
			date := weekStart.AddDate(0, 0, daysAhead)

			if _, holiday := holidays[date.Format("2006-01-02")]; holiday {
				result.Skipped++
				continue
			}

			_, created, err := s.sessionRepo.GetOrCreate(ctx, &models.ClassSession{
				CourseID:   courseID,
				Date:       date,
				WeekNumber: week + 1,
				StartTime:  schedule.StartTime,
				EndTime:    schedule.EndTime,
			})
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
			}
			if created {
				result.Created++
			}
		}
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "scoring:"+courseID+":*"); err != nil {
			s.logger.Warn("failed to invalidate scoring cache", zap.String("course_id", courseID), zap.Error(err))
		}
	}

	s.logger.Info("session generation finished",
		zap.String("course_id", courseID),
		zap.Int("created", result.Created),
		zap.Int("deleted", result.Deleted),
		zap.Int("skipped", result.Skipped))
	return result, nil
}
