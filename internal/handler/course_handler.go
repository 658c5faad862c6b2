package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/univlabs/qr-attendance-api/internal/models"
	"github.com/univlabs/qr-attendance-api/internal/service"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
	"github.com/univlabs/qr-attendance-api/pkg/response"
)

// CourseHandler wires HTTP endpoints to the course service.
type CourseHandler struct {
	courses   *service.CourseService
	schedules *service.ScheduleService
}

// NewCourseHandler creates a new handler.
func NewCourseHandler(courses *service.CourseService, schedules *service.ScheduleService) *CourseHandler {
	return &CourseHandler{courses: courses, schedules: schedules}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param semester query string false "Semester filter"
// @Param search query string false "Code or name search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	filter := models.CourseFilter{
		Semester: c.Query("semester"),
		Search:   c.Query("search"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))

	courses, pagination, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get one course
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create a course
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update a course
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body service.CourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req service.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	course, err := h.courses.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// RotateQRToken godoc
// @Summary Rotate the course QR token
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/rotate-token [post]
func (h *CourseHandler) RotateQRToken(c *gin.Context) {
	course, err := h.courses.RotateQRToken(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete a course
// @Tags Courses
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.courses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSchedules godoc
// @Summary List a course's weekly schedules
// @Tags Schedules
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/schedules [get]
func (h *CourseHandler) ListSchedules(c *gin.Context) {
	schedules, err := h.schedules.ListByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, nil)
}

// CreateSchedule godoc
// @Summary Add a weekly schedule slot
// @Tags Schedules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body service.ScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{id}/schedules [post]
func (h *CourseHandler) CreateSchedule(c *gin.Context) {
	var req service.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule payload"))
		return
	}
	schedule, err := h.schedules.Create(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schedule)
}

// UpdateSchedule godoc
// @Summary Update a weekly schedule slot
// @Tags Schedules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param scheduleId path string true "Schedule ID"
// @Param payload body service.ScheduleRequest true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{scheduleId} [put]
func (h *CourseHandler) UpdateSchedule(c *gin.Context) {
	var req service.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule payload"))
		return
	}
	schedule, err := h.schedules.Update(c.Request.Context(), c.Param("scheduleId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// DeleteSchedule godoc
// @Summary Remove a weekly schedule slot
// @Tags Schedules
// @Security BearerAuth
// @Param scheduleId path string true "Schedule ID"
// @Success 204
// @Router /schedules/{scheduleId} [delete]
func (h *CourseHandler) DeleteSchedule(c *gin.Context) {
	if err := h.schedules.Delete(c.Request.Context(), c.Param("scheduleId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
