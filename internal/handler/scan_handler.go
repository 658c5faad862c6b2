package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/univlabs/qr-attendance-api/internal/service"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
	"github.com/univlabs/qr-attendance-api/pkg/response"
)

// ScanHandler serves the public QR endpoints: the scan view and the
// attendance submission.
type ScanHandler struct {
	resolver   *service.ResolverService
	attendance *service.AttendanceService
	metrics    *service.MetricsService
}

// NewScanHandler creates a new handler.
func NewScanHandler(resolver *service.ResolverService, attendance *service.AttendanceService, metrics *service.MetricsService) *ScanHandler {
	return &ScanHandler{resolver: resolver, attendance: attendance, metrics: metrics}
}

// Scan godoc
// @Summary Resolve a scanned QR code
// @Description Returns the active session for the course, or the next scheduled meeting
// @Tags Attendance
// @Produce json
// @Param qrToken path string true "Course QR token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /a/{qrToken} [get]
func (h *ScanHandler) Scan(c *gin.Context) {
	view, err := h.resolver.ResolveByToken(c.Request.Context(), c.Param("qrToken"), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Submit godoc
// @Summary Submit attendance
// @Description Records one attendance submission for the currently active session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param qrToken path string true "Course QR token"
// @Param payload body service.SubmitRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /a/{qrToken}/submit [post]
func (h *ScanHandler) Submit(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	req.QRToken = c.Param("qrToken")
	req.OriginAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	result, err := h.attendance.Submit(c.Request.Context(), req)
	if err != nil {
		h.metrics.RecordSubmission(submissionOutcome(err))
		response.Error(c, err)
		return
	}

	h.metrics.RecordSubmission("accepted")
	response.Created(c, result)
}

func submissionOutcome(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrEmptyIdentifier):
		return "empty_identifier"
	case errors.Is(err, appErrors.ErrDuplicateOrigin):
		return "duplicate_origin"
	case errors.Is(err, appErrors.ErrDuplicateIdentifier):
		return "duplicate_identifier"
	case errors.Is(err, appErrors.ErrSessionCancelled):
		return "session_cancelled"
	case errors.Is(err, appErrors.ErrNoActiveSession):
		return "no_active_session"
	default:
		return "error"
	}
}
