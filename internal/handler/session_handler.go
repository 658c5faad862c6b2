package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/univlabs/qr-attendance-api/internal/service"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
	"github.com/univlabs/qr-attendance-api/pkg/response"
)

// SessionHandler serves session listings, bulk generation, and per-session
// attendance administration.
type SessionHandler struct {
	sessions   *service.SessionService
	generator  *service.GeneratorService
	attendance *service.AttendanceService
	metrics    *service.MetricsService
}

// NewSessionHandler creates a new handler.
func NewSessionHandler(
	sessions *service.SessionService,
	generator *service.GeneratorService,
	attendance *service.AttendanceService,
	metrics *service.MetricsService,
) *SessionHandler {
	return &SessionHandler{sessions: sessions, generator: generator, attendance: attendance, metrics: metrics}
}

// List godoc
// @Summary List a course's sessions
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param include_cancelled query bool false "Include cancelled sessions"
// @Param from query string false "Date lower bound (YYYY-MM-DD)"
// @Param to query string false "Date upper bound (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	includeCancelled := c.Query("include_cancelled") == "true"
	from, err := parseDateQuery(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := parseDateQuery(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}

	sessions, err := h.sessions.ListByCourse(c.Request.Context(), c.Param("id"), includeCancelled, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Generate godoc
// @Summary Generate the semester's sessions
// @Description Creates every remaining session from the course's weekly schedules, skipping holidays
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param regenerate query bool false "Delete record-free sessions first"
// @Param payload body service.GenerateRequest false "Optional start_date/weeks overrides"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{id}/sessions/generate [post]
func (h *SessionHandler) Generate(c *gin.Context) {
	var req service.GenerateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
			return
		}
	}
	if c.Query("regenerate") == "true" {
		req.Regenerate = true
	}
	result, err := h.generator.Generate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	for i := 0; i < result.Created; i++ {
		h.metrics.RecordSessionCreated()
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Records godoc
// @Summary List a session's attendance records
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId}/records [get]
func (h *SessionHandler) Records(c *gin.Context) {
	if _, err := h.sessions.Get(c.Request.Context(), c.Param("sessionId")); err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.attendance.ListBySession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Excuse godoc
// @Summary Excuse a student for a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body service.ExcuseRequest true "Excuse payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/excused-absences [post]
func (h *SessionHandler) Excuse(c *gin.Context) {
	var req service.ExcuseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid excuse payload"))
		return
	}
	absence, err := h.attendance.Excuse(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, absence)
}

// RemoveExcuse godoc
// @Summary Remove an excused absence
// @Tags Sessions
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param absenceId path string true "Excused absence ID"
// @Success 204
// @Router /courses/{id}/excused-absences/{absenceId} [delete]
func (h *SessionHandler) RemoveExcuse(c *gin.Context) {
	if err := h.attendance.RemoveExcuse(c.Request.Context(), c.Param("id"), c.Param("absenceId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func parseDateQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid "+key+" date")
	}
	return &date, nil
}
