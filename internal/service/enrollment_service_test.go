package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

type enrollmentStoreStub struct {
	byStudentCourse map[string]*models.Enrollment
	created         []*models.Enrollment
	grades          map[string][2]*float64
	deleted         []string
}

func (s *enrollmentStoreStub) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

func (s *enrollmentStoreStub) FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	if enrollment, ok := s.byStudentCourse[studentID+"|"+courseID]; ok {
		return enrollment, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentStoreStub) Create(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.ID = fmt.Sprintf("enr-%d", len(s.created)+1)
	s.created = append(s.created, enrollment)
	return nil
}

func (s *enrollmentStoreStub) UpdateGrades(ctx context.Context, id string, midterm, final *float64) error {
	if s.grades == nil {
		s.grades = make(map[string][2]*float64)
	}
	s.grades[id] = [2]*float64{midterm, final}
	return nil
}

func (s *enrollmentStoreStub) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type enrollmentRosterStub struct {
	students map[string]*models.Student
	created  []*models.Student
}

func (s *enrollmentRosterStub) FindByIdentifier(ctx context.Context, identifier string) (*models.Student, error) {
	if student, ok := s.students[identifier]; ok {
		return student, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentRosterStub) Create(ctx context.Context, student *models.Student) error {
	student.ID = fmt.Sprintf("stu-%d", len(s.created)+1)
	s.created = append(s.created, student)
	if s.students == nil {
		s.students = make(map[string]*models.Student)
	}
	s.students[student.Identifier] = student
	return nil
}

func TestEnrollExistingStudent(t *testing.T) {
	store := &enrollmentStoreStub{}
	roster := &enrollmentRosterStub{students: map[string]*models.Student{
		"S001": {ID: "stu-1", Identifier: "S001", Name: "Ada Lovelace"},
	}}
	svc := NewEnrollmentService(store, roster, nil, nil)

	enrollment, err := svc.Enroll(context.Background(), "c1", EnrollRequest{Identifier: "S001"})
	require.NoError(t, err)

	assert.Equal(t, "stu-1", enrollment.StudentID)
	assert.Equal(t, "c1", enrollment.CourseID)
	assert.Empty(t, roster.created)
}

func TestEnrollCreatesStudentWhenNamed(t *testing.T) {
	store := &enrollmentStoreStub{}
	roster := &enrollmentRosterStub{}
	svc := NewEnrollmentService(store, roster, nil, nil)

	enrollment, err := svc.Enroll(context.Background(), "c1", EnrollRequest{
		Identifier: "S999",
		Name:       "Grace Hopper",
		Email:      "S999@Uni.Edu.Tr",
	})
	require.NoError(t, err)

	require.Len(t, roster.created, 1)
	assert.Equal(t, "Grace Hopper", roster.created[0].Name)
	assert.Equal(t, "s999@uni.edu.tr", roster.created[0].Email)
	assert.Equal(t, roster.created[0].ID, enrollment.StudentID)
}

func TestEnrollUnknownIdentifierWithoutName(t *testing.T) {
	svc := NewEnrollmentService(&enrollmentStoreStub{}, &enrollmentRosterStub{}, nil, nil)

	_, err := svc.Enroll(context.Background(), "c1", EnrollRequest{Identifier: "S999"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateGradesValidatesRange(t *testing.T) {
	svc := NewEnrollmentService(&enrollmentStoreStub{}, &enrollmentRosterStub{}, nil, nil)

	bad := 140.0
	err := svc.UpdateGrades(context.Background(), "enr-1", GradesRequest{MidtermGrade: &bad})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestImportGradesCSV(t *testing.T) {
	store := &enrollmentStoreStub{byStudentCourse: map[string]*models.Enrollment{
		"stu-1|c1": {ID: "enr-1", StudentID: "stu-1", CourseID: "c1"},
		"stu-2|c1": {ID: "enr-2", StudentID: "stu-2", CourseID: "c1"},
	}}
	roster := &enrollmentRosterStub{students: map[string]*models.Student{
		"S001": {ID: "stu-1", Identifier: "S001"},
		"S002": {ID: "stu-2", Identifier: "S002"},
		"S004": {ID: "stu-4", Identifier: "S004"},
	}}
	svc := NewEnrollmentService(store, roster, nil, nil)

	payload := []byte("identifier,midterm,final\n" +
		"S001,70,85.5\n" +
		"S002,,90\n" +
		"S003,50,60\n" + // not on the roster
		"S004,40,55\n" + // known student, not enrolled in this course
		"S001,abc,10\n")

	report, err := svc.ImportGradesCSV(context.Background(), "c1", payload)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, []string{"S003", "S004"}, report.Skipped)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "line 6")
	assert.Contains(t, report.Errors[0], `invalid grade "abc"`)

	grades := store.grades["enr-1"]
	require.NotNil(t, grades[0])
	assert.Equal(t, 70.0, *grades[0])
	require.NotNil(t, grades[1])
	assert.Equal(t, 85.5, *grades[1])

	// Empty cells import as unset, not zero.
	assert.Nil(t, store.grades["enr-2"][0])
	require.NotNil(t, store.grades["enr-2"][1])
	assert.Equal(t, 90.0, *store.grades["enr-2"][1])
}
