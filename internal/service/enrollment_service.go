package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

type enrollmentRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
	FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateGrades(ctx context.Context, id string, midterm, final *float64) error
	Delete(ctx context.Context, id string) error
}

type enrollmentStudentRepository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
}

// EnrollRequest enrolls an existing student, or creates one on the fly when
// name is provided alongside an unknown identifier.
type EnrollRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Name       string `json:"name"`
	Email      string `json:"email" validate:"omitempty,email"`
}

// GradesRequest sets grades on one enrollment.
type GradesRequest struct {
	MidtermGrade *float64 `json:"midterm_grade" validate:"omitempty,gte=0,lte=100"`
	FinalGrade   *float64 `json:"final_grade" validate:"omitempty,gte=0,lte=100"`
}

// EnrollmentService owns course rosters and grade recording.
type EnrollmentService struct {
	enrollments enrollmentRepository
	students    enrollmentStudentRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(
	enrollments enrollmentRepository,
	students enrollmentStudentRepository,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		students:    students,
		validator:   validate,
		logger:      logger,
	}
}

// ListByCourse returns the roster with student identity and grades.
func (s *EnrollmentService) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	details, err := s.enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return details, nil
}

// Enroll adds a student to a course, creating the student when the
// identifier is new and a name was supplied.
func (s *EnrollmentService) Enroll(ctx context.Context, courseID string, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	identifier := strings.TrimSpace(req.Identifier)

	student, err := s.students.FindByIdentifier(ctx, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		if strings.TrimSpace(req.Name) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown identifier; provide a name to create the student")
		}
		student = &models.Student{
			Identifier: identifier,
			Name:       strings.TrimSpace(req.Name),
			Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		}
		if err := s.students.Create(ctx, student); err != nil {
			var appErr *appErrors.Error
			if errors.As(err, &appErr) {
				return nil, appErr
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
		}
	} else if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up student")
	}

	enrollment := &models.Enrollment{StudentID: student.ID, CourseID: courseID}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}
	return enrollment, nil
}

// UpdateGrades sets grades on one enrollment.
func (s *EnrollmentService) UpdateGrades(ctx context.Context, enrollmentID string, req GradesRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grades payload")
	}
	if err := s.enrollments.UpdateGrades(ctx, enrollmentID, req.MidtermGrade, req.FinalGrade); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grades")
	}
	return nil
}

// Unenroll removes a student from a course.
func (s *EnrollmentService) Unenroll(ctx context.Context, enrollmentID string) error {
	if err := s.enrollments.Delete(ctx, enrollmentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove enrollment")
	}
	return nil
}

// ImportGradesCSV ingests a "identifier,midterm,final" CSV. Rows keep being
// processed after a failure; every problem is reported with its line number.
func (s *EnrollmentService) ImportGradesCSV(ctx context.Context, courseID string, payload []byte) (*models.GradeImportReport, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	report := &models.GradeImportReport{}
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if line == 1 && looksLikeHeader(record) {
			continue
		}
		if len(record) < 3 {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: expected identifier, midterm, final", line))
			continue
		}

		identifier := strings.TrimSpace(record[0])
		if identifier == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: empty identifier", line))
			continue
		}

		midterm, err := parseGrade(record[1])
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		final, err := parseGrade(record[2])
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		student, err := s.students.FindByIdentifier(ctx, identifier)
		if errors.Is(err, sql.ErrNoRows) {
			report.Skipped = append(report.Skipped, identifier)
			continue
		}
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: student lookup failed", line))
			continue
		}

		enrollment, err := s.enrollments.FindByStudentCourse(ctx, student.ID, courseID)
		if errors.Is(err, sql.ErrNoRows) {
			report.Skipped = append(report.Skipped, identifier)
			continue
		}
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: enrollment lookup failed", line))
			continue
		}

		if err := s.enrollments.UpdateGrades(ctx, enrollment.ID, midterm, final); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: failed to save grades", line))
			continue
		}
		report.Updated++
	}

	s.logger.Info("grade import finished",
		zap.String("course_id", courseID),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

func looksLikeHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(record[0]))
	return first == "identifier" || first == "student_id" || first == "student id"
}

func parseGrade(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid grade %q", raw)
	}
	if value < 0 || value > 100 {
		return nil, fmt.Errorf("grade %q out of range", raw)
	}
	return &value, nil
}
