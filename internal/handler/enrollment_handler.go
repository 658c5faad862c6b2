package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/univlabs/qr-attendance-api/internal/service"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
	"github.com/univlabs/qr-attendance-api/pkg/response"
)

// EnrollmentHandler wires HTTP endpoints to the enrollment service.
type EnrollmentHandler struct {
	service *service.EnrollmentService
}

// NewEnrollmentHandler creates a new handler.
func NewEnrollmentHandler(svc *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// List godoc
// @Summary List a course's roster
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	details, err := h.service.ListByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// Enroll godoc
// @Summary Enroll a student in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}
	enrollment, err := h.service.Enroll(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// UpdateGrades godoc
// @Summary Record grades on an enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param enrollmentId path string true "Enrollment ID"
// @Param payload body service.GradesRequest true "Grades payload"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Router /enrollments/{enrollmentId}/grades [put]
func (h *EnrollmentHandler) UpdateGrades(c *gin.Context) {
	var req service.GradesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grades payload"))
		return
	}
	if err := h.service.UpdateGrades(c.Request.Context(), c.Param("enrollmentId"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ImportGrades godoc
// @Summary Import grades from CSV
// @Description Accepts an "identifier,midterm,final" CSV and reports per-row problems
// @Tags Enrollments
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{id}/grades/import [post]
func (h *EnrollmentHandler) ImportGrades(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "csv file is required"))
		return
	}
	defer file.Close() //nolint:errcheck

	payload, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read csv file"))
		return
	}

	report, err := h.service.ImportGradesCSV(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Unenroll godoc
// @Summary Remove a student from a course
// @Tags Enrollments
// @Security BearerAuth
// @Param enrollmentId path string true "Enrollment ID"
// @Success 204
// @Router /enrollments/{enrollmentId} [delete]
func (h *EnrollmentHandler) Unenroll(c *gin.Context) {
	if err := h.service.Unenroll(c.Request.Context(), c.Param("enrollmentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
