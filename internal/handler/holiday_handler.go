package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/univlabs/qr-attendance-api/internal/service"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
	"github.com/univlabs/qr-attendance-api/pkg/response"
)

// HolidayHandler wires HTTP endpoints to the holiday service.
type HolidayHandler struct {
	service *service.HolidayService
}

// NewHolidayHandler creates a new handler.
func NewHolidayHandler(svc *service.HolidayService) *HolidayHandler {
	return &HolidayHandler{service: svc}
}

// List godoc
// @Summary List holidays
// @Tags Holidays
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /holidays [get]
func (h *HolidayHandler) List(c *gin.Context) {
	holidays, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, holidays, nil)
}

// Create godoc
// @Summary Declare a holiday
// @Description Stores the holiday and cancels every session on its date
// @Tags Holidays
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateHolidayRequest true "Holiday payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /holidays [post]
func (h *HolidayHandler) Create(c *gin.Context) {
	var req service.CreateHolidayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid holiday payload"))
		return
	}
	result, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Delete godoc
// @Summary Remove a holiday
// @Description Deletes the holiday and restores the sessions it cancelled
// @Tags Holidays
// @Produce json
// @Security BearerAuth
// @Param id path string true "Holiday ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /holidays/{id} [delete]
func (h *HolidayHandler) Delete(c *gin.Context) {
	result, err := h.service.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
