package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/univlabs/qr-attendance-api/internal/service"
	"github.com/univlabs/qr-attendance-api/pkg/response"
)

// DashboardHandler serves instructor scoring views and exports.
type DashboardHandler struct {
	scoring *service.ScoringService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(scoring *service.ScoringService) *DashboardHandler {
	return &DashboardHandler{scoring: scoring}
}

// Dashboard godoc
// @Summary Course attendance dashboard
// @Description Per-student attendance standing, course average, and at-risk list
// @Tags Scoring
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/dashboard [get]
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	dashboard, err := h.scoring.Dashboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}

// Matrix godoc
// @Summary Students-by-sessions attendance matrix
// @Tags Scoring
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/matrix [get]
func (h *DashboardHandler) Matrix(c *gin.Context) {
	matrix, err := h.scoring.Matrix(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, matrix, nil)
}

// ExportCSV godoc
// @Summary Export the attendance matrix as CSV
// @Tags Scoring
// @Produce text/csv
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {string} string "CSV payload"
// @Router /courses/{id}/matrix/export.csv [get]
func (h *DashboardHandler) ExportCSV(c *gin.Context) {
	payload, err := h.scoring.ExportMatrixCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, "text/csv", fmt.Sprintf("attendance-%s.csv", c.Param("id")), payload)
}

// ExportPDF godoc
// @Summary Export the attendance matrix as PDF
// @Tags Scoring
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {string} string "PDF payload"
// @Router /courses/{id}/matrix/export.pdf [get]
func (h *DashboardHandler) ExportPDF(c *gin.Context) {
	payload, err := h.scoring.ExportMatrixPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, "application/pdf", fmt.Sprintf("attendance-%s.pdf", c.Param("id")), payload)
}
