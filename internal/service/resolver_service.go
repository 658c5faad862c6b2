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

type resolverCourseRepository interface {
	FindByQRToken(ctx context.Context, token string) (*models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type resolverScheduleRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Schedule, error)
	ListByCourseAndDay(ctx context.Context, courseID string, dayOfWeek int) ([]models.Schedule, error)
}

type resolverSessionRepository interface {
	GetOrCreate(ctx context.Context, session *models.ClassSession) (*models.ClassSession, bool, error)
	EarliestDate(ctx context.Context, courseID string) (*time.Time, error)
}

type resolverHolidayRepository interface {
	ExistsByDate(ctx context.Context, date time.Time) (bool, error)
}

// ResolverConfig tunes scan-time session resolution.
type ResolverConfig struct {
	// HolidayCheckOnScan rejects scans on holiday dates even when a session
	// row already exists. Bulk generation skips holidays either way.
	HolidayCheckOnScan bool
}

// NextSession points a visitor at the course's next scheduled meeting.
type NextSession struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
}

// ScanView is the state of a course at scan time: either an active session,
// a cancelled slot, or a pointer to the next scheduled meeting.
type ScanView struct {
	Course    *models.Course       `json:"course"`
	Active    bool                 `json:"active"`
	Cancelled bool                 `json:"cancelled"`
	Session   *models.ClassSession `json:"session,omitempty"`
	Schedule  *models.Schedule     `json:"schedule,omitempty"`
	Next      *NextSession         `json:"next,omitempty"`
}

// ResolverService maps a scanned QR token and a wall-clock instant to the
// class session the scan belongs to, materializing the session on first
// contact.
type ResolverService struct {
	courseRepo   resolverCourseRepository
	scheduleRepo resolverScheduleRepository
	sessionRepo  resolverSessionRepository
	holidayRepo  resolverHolidayRepository
	location     *time.Location
	config       ResolverConfig
	logger       *zap.Logger
}

// NewResolverService constructs the resolver.
func NewResolverService(
	courses resolverCourseRepository,
	schedules resolverScheduleRepository,
	sessions resolverSessionRepository,
	holidays resolverHolidayRepository,
	location *time.Location,
	config ResolverConfig,
	logger *zap.Logger,
) *ResolverService {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResolverService{
		courseRepo:   courses,
		scheduleRepo: schedules,
		sessionRepo:  sessions,
		holidayRepo:  holidays,
		location:     location,
		config:       config,
		logger:       logger,
	}
}

// ResolveByToken resolves the scan state for a QR token at the given instant.
// The instant is converted to the configured campus timezone before any
// schedule matching happens.
func (s *ResolverService) ResolveByToken(ctx context.Context, qrToken string, now time.Time) (*ScanView, error) {
	course, err := s.courseRepo.FindByQRToken(ctx, qrToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown course code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course")
	}
	return s.resolve(ctx, course, now)
}

func (s *ResolverService) resolve(ctx context.Context, course *models.Course, now time.Time) (*ScanView, error) {
	local := now.In(s.location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	weekday := models.GoWeekday(local.Weekday())
	nowMinutes := local.Hour()*60 + local.Minute()

	view := &ScanView{Course: course}

	if s.config.HolidayCheckOnScan && s.holidayRepo != nil {
		isHoliday, err := s.holidayRepo.ExistsByDate(ctx, today)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check holiday calendar")
		}
		if isHoliday {
			// A holiday reads as a cancelled slot, not as a day with no class.
			view.Cancelled = true
			if err := s.attachNext(ctx, view, weekday, nowMinutes); err != nil {
				return nil, err
			}
			return view, nil
		}
	}

	schedules, err := s.scheduleRepo.ListByCourseAndDay(ctx, course.ID, weekday)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedules")
	}

	for i := range schedules {
		schedule := &schedules[i]
		start, err := models.ParseClock(schedule.StartTime)
		if err != nil {
			s.logger.Warn("skipping schedule with bad start time", zap.String("schedule_id", schedule.ID), zap.Error(err))
			continue
		}
		end, err := models.ParseClock(schedule.EndTime)
		if err != nil {
			s.logger.Warn("skipping schedule with bad end time", zap.String("schedule_id", schedule.ID), zap.Error(err))
			continue
		}

		// The effective window is inclusive on both edges.
		windowOpen := start - schedule.GraceBeforeMinutes
		windowClose := end + schedule.GraceAfterMinutes
		if nowMinutes < windowOpen || nowMinutes > windowClose {
			continue
		}

		week, err := s.weekNumberFor(ctx, course, today)
		if err != nil {
			return nil, err
		}
		session, created, err := s.sessionRepo.GetOrCreate(ctx, &models.ClassSession{
			CourseID:   course.ID,
			Date:       today,
			WeekNumber: week,
			StartTime:  schedule.StartTime,
			EndTime:    schedule.EndTime,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to materialize session")
		}
		if created {
			s.logger.Info("session materialized on scan",
				zap.String("course_id", course.ID),
				zap.String("session_id", session.ID),
				zap.Int("week", session.WeekNumber))
		}

		view.Schedule = schedule
		if session.IsCancelled {
			view.Cancelled = true
			if err := s.attachNext(ctx, view, weekday, nowMinutes); err != nil {
				return nil, err
			}
			return view, nil
		}
		view.Active = true
		view.Session = session
		return view, nil
	}

	if err := s.attachNext(ctx, view, weekday, nowMinutes); err != nil {
		return nil, err
	}
	return view, nil
}

// attachNext fills in the next scheduled meeting: the first slot strictly
// after the current instant in week order, wrapping to the week's first slot
// when nothing remains this week.
func (s *ResolverService) attachNext(ctx context.Context, view *ScanView, weekday, nowMinutes int) error {
	schedules, err := s.scheduleRepo.ListByCourse(ctx, view.Course.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedules")
	}
	if len(schedules) == 0 {
		return nil
	}

	for _, schedule := range schedules {
		if schedule.DayOfWeek < weekday {
			continue
		}
		if schedule.DayOfWeek == weekday {
			start, err := models.ParseClock(schedule.StartTime)
			if err != nil || start <= nowMinutes {
				continue
			}
		}
		view.Next = &NextSession{DayOfWeek: schedule.DayOfWeek, StartTime: schedule.StartTime}
		return nil
	}

	first := schedules[0]
	view.Next = &NextSession{DayOfWeek: first.DayOfWeek, StartTime: first.StartTime}
	return nil
}

// weekNumberFor computes the 1-based teaching week for a date. The course's
// semester start date anchors the count when set; otherwise the earliest
// materialized session does. A course with neither is in week 1.
func (s *ResolverService) weekNumberFor(ctx context.Context, course *models.Course, date time.Time) (int, error) {
	var anchor *time.Time
	if course.SemesterStartDate != nil {
		anchor = course.SemesterStartDate
	} else {
		earliest, err := s.sessionRepo.EarliestDate(ctx, course.ID)
		if err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to anchor week number")
		}
		anchor = earliest
	}
	if anchor == nil {
		return 1, nil
	}
	days := int(date.Sub(truncateToDay(*anchor)).Hours() / 24)
	if days < 0 {
		return 1, nil
	}
	return days/7 + 1, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
