package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
	"github.com/univlabs/qr-attendance-api/pkg/storage"
)

type materialRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseMaterial, error)
	FindByID(ctx context.Context, id string) (*models.CourseMaterial, error)
	Create(ctx context.Context, material *models.CourseMaterial) error
	Update(ctx context.Context, material *models.CourseMaterial) error
	Delete(ctx context.Context, id string) error
}

// MaterialRequest is the metadata payload for a material.
type MaterialRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description"`
	URL         *string `json:"url" validate:"omitempty,url"`
	SortOrder   int     `json:"sort_order" validate:"gte=0"`
}

// MaterialDownload is a signed, expiring download reference.
type MaterialDownload struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MaterialService owns course materials: link entries and uploaded files
// served through signed URLs.
type MaterialService struct {
	repo      materialRepository
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	baseURL   string
	maxBytes  int64
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMaterialService constructs the material service.
func NewMaterialService(
	repo materialRepository,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	baseURL string,
	maxBytes int64,
	validate *validator.Validate,
	logger *zap.Logger,
) *MaterialService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &MaterialService{
		repo:      repo,
		store:     store,
		signer:    signer,
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxBytes:  maxBytes,
		validator: validate,
		logger:    logger,
	}
}

// ListByCourse returns a course's materials in display order.
func (s *MaterialService) ListByCourse(ctx context.Context, courseID string) ([]models.CourseMaterial, error) {
	materials, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list materials")
	}
	return materials, nil
}

// CreateLink stores a link-only material.
func (s *MaterialService) CreateLink(ctx context.Context, courseID string, req MaterialRequest) (*models.CourseMaterial, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid material payload")
	}
	if req.URL == nil || *req.URL == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "link materials require a url")
	}
	material := &models.CourseMaterial{
		CourseID:    courseID,
		Title:       req.Title,
		Description: req.Description,
		URL:         req.URL,
		SortOrder:   req.SortOrder,
	}
	if err := s.repo.Create(ctx, material); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create material")
	}
	return material, nil
}

// Upload stores a file under the course's directory and records it.
func (s *MaterialService) Upload(ctx context.Context, courseID string, req MaterialRequest, filename string, data []byte) (*models.CourseMaterial, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid material payload")
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.maxBytes))
	}

	safeName := filepath.Base(filename)
	relPath := filepath.Join(courseID, uuid.NewString()+"-"+safeName)
	if _, err := s.store.Save(relPath, data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	material := &models.CourseMaterial{
		CourseID:    courseID,
		Title:       req.Title,
		Description: req.Description,
		FilePath:    &relPath,
		SortOrder:   req.SortOrder,
	}
	if err := s.repo.Create(ctx, material); err != nil {
		_ = s.store.Delete(relPath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create material")
	}
	return material, nil
}

// Update modifies material metadata.
func (s *MaterialService) Update(ctx context.Context, id string, req MaterialRequest) (*models.CourseMaterial, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid material payload")
	}
	material, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	material.Title = req.Title
	material.Description = req.Description
	material.SortOrder = req.SortOrder
	if material.FilePath == nil {
		material.URL = req.URL
	}
	if err := s.repo.Update(ctx, material); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update material")
	}
	return material, nil
}

// Delete removes the material record and its stored file, if any.
func (s *MaterialService) Delete(ctx context.Context, id string) error {
	material, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete material")
	}
	if material.FilePath != nil {
		if err := s.store.Delete(*material.FilePath); err != nil {
			s.logger.Warn("failed to remove stored file", zap.String("material_id", id), zap.Error(err))
		}
	}
	return nil
}

// DownloadURL issues a signed, expiring download link for a file material.
func (s *MaterialService) DownloadURL(ctx context.Context, id string) (*MaterialDownload, error) {
	material, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if material.FilePath == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "material has no stored file")
	}
	token, expiresAt, err := s.signer.Generate(material.ID, *material.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &MaterialDownload{
		URL:       fmt.Sprintf("%s/materials/download?token=%s", s.baseURL, token),
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveDownload validates a signed token and opens the referenced file.
func (s *MaterialService) ResolveDownload(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file no longer exists")
	}
	return file, filepath.Base(relPath), nil
}

func (s *MaterialService) get(ctx context.Context, id string) (*models.CourseMaterial, error) {
	material, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	return material, nil
}
