package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/univlabs/qr-attendance-api/internal/service"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
	"github.com/univlabs/qr-attendance-api/pkg/response"
)

// MaterialHandler wires HTTP endpoints to the material service.
type MaterialHandler struct {
	service *service.MaterialService
}

// NewMaterialHandler creates a new handler.
func NewMaterialHandler(svc *service.MaterialService) *MaterialHandler {
	return &MaterialHandler{service: svc}
}

// List godoc
// @Summary List a course's materials
// @Tags Materials
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/materials [get]
func (h *MaterialHandler) List(c *gin.Context) {
	materials, err := h.service.ListByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, materials, nil)
}

// CreateLink godoc
// @Summary Add a link material
// @Tags Materials
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body service.MaterialRequest true "Material payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{id}/materials [post]
func (h *MaterialHandler) CreateLink(c *gin.Context) {
	var req service.MaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid material payload"))
		return
	}
	material, err := h.service.CreateLink(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, material)
}

// Upload godoc
// @Summary Upload a file material
// @Description Multipart upload; the "meta" field carries the JSON metadata
// @Tags Materials
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param file formData file true "File"
// @Param meta formData string true "Material metadata JSON"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{id}/materials/upload [post]
func (h *MaterialHandler) Upload(c *gin.Context) {
	var req service.MaterialRequest
	meta := c.PostForm("meta")
	if meta == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "material metadata is required"))
		return
	}
	if err := json.Unmarshal([]byte(meta), &req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid material metadata"))
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read file"))
		return
	}

	material, err := h.service.Upload(c.Request.Context(), c.Param("id"), req, header.Filename, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, material)
}

// Update godoc
// @Summary Update material metadata
// @Tags Materials
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param materialId path string true "Material ID"
// @Param payload body service.MaterialRequest true "Material payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /materials/{materialId} [put]
func (h *MaterialHandler) Update(c *gin.Context) {
	var req service.MaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid material payload"))
		return
	}
	material, err := h.service.Update(c.Request.Context(), c.Param("materialId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, material, nil)
}

// Delete godoc
// @Summary Delete a material
// @Tags Materials
// @Security BearerAuth
// @Param materialId path string true "Material ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /materials/{materialId} [delete]
func (h *MaterialHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("materialId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DownloadURL godoc
// @Summary Issue a signed download link
// @Tags Materials
// @Produce json
// @Security BearerAuth
// @Param materialId path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /materials/{materialId}/download-url [get]
func (h *MaterialHandler) DownloadURL(c *gin.Context) {
	download, err := h.service.DownloadURL(c.Request.Context(), c.Param("materialId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, download, nil)
}

// Download godoc
// @Summary Download a file by signed token
// @Tags Materials
// @Produce application/octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {string} string "File payload"
// @Failure 401 {object} response.Envelope
// @Router /materials/download [get]
func (h *MaterialHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, name, err := h.service.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.FileAttachment(file.Name(), name)
}
