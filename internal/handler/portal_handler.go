package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/univlabs/qr-attendance-api/internal/service"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
	"github.com/univlabs/qr-attendance-api/pkg/response"
)

// PortalHandler serves the student magic-link portal.
type PortalHandler struct {
	portal  *service.PortalService
	scoring *service.ScoringService
}

// NewPortalHandler creates a new handler.
func NewPortalHandler(portal *service.PortalService, scoring *service.ScoringService) *PortalHandler {
	return &PortalHandler{portal: portal, scoring: scoring}
}

// RequestLink godoc
// @Summary Request a magic login link
// @Tags Portal
// @Accept json
// @Produce json
// @Param payload body service.LinkRequest true "Email payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /portal/request-link [post]
func (h *PortalHandler) RequestLink(c *gin.Context) {
	var req service.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid email payload"))
		return
	}
	result, err := h.portal.RequestLink(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Verify godoc
// @Summary Verify a magic link
// @Description Consumes the single-use token and opens a portal session
// @Tags Portal
// @Accept json
// @Produce json
// @Param payload body object true "Token payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /portal/verify [post]
func (h *PortalHandler) Verify(c *gin.Context) {
	var payload struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "token is required"))
		return
	}
	session, err := h.portal.VerifyMagicToken(c.Request.Context(), payload.Token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Dashboard godoc
// @Summary Student attendance dashboard
// @Tags Portal
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /portal/dashboard [get]
func (h *PortalHandler) Dashboard(c *gin.Context) {
	claims := studentClaimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	student, err := h.portal.Student(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.scoring.PortalDashboard(c.Request.Context(), student)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"student": student, "courses": stats}, nil)
}

// CourseDetail godoc
// @Summary Student's session-by-session course view
// @Tags Portal
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /portal/courses/{id} [get]
func (h *PortalHandler) CourseDetail(c *gin.Context) {
	claims := studentClaimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	student, err := h.portal.Student(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, sessions, err := h.scoring.PortalCourseDetail(c.Request.Context(), c.Param("id"), student)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"course": stats, "sessions": sessions}, nil)
}
