package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/univlabs/qr-attendance-api/internal/models"
)

const materialColumns = "id, course_id, title, description, file_path, url, sort_order, created_at"

// MaterialRepository persists course materials.
type MaterialRepository struct {
	db *sqlx.DB
}

// NewMaterialRepository constructs the repository.
func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// ListByCourse returns a course's materials in display order.
func (r *MaterialRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseMaterial, error) {
	const query = `SELECT ` + materialColumns + ` FROM course_materials WHERE course_id = $1 ORDER BY sort_order ASC, created_at ASC`
	var materials []models.CourseMaterial
	if err := r.db.SelectContext(ctx, &materials, query, courseID); err != nil {
		return nil, fmt.Errorf("list course materials: %w", err)
	}
	return materials, nil
}

// FindByID loads a material by id.
func (r *MaterialRepository) FindByID(ctx context.Context, id string) (*models.CourseMaterial, error) {
	const query = `SELECT ` + materialColumns + ` FROM course_materials WHERE id = $1`
	var material models.CourseMaterial
	if err := r.db.GetContext(ctx, &material, query, id); err != nil {
		return nil, err
	}
	return &material, nil
}

// Create stores a new material record.
func (r *MaterialRepository) Create(ctx context.Context, material *models.CourseMaterial) error {
	if material.ID == "" {
		material.ID = uuid.NewString()
	}
	material.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO course_materials (id, course_id, title, description, file_path, url, sort_order, created_at)
VALUES (:id, :course_id, :title, :description, :file_path, :url, :sort_order, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, material); err != nil {
		return fmt.Errorf("create course material: %w", err)
	}
	return nil
}

// Update modifies a material's metadata.
func (r *MaterialRepository) Update(ctx context.Context, material *models.CourseMaterial) error {
	const query = `UPDATE course_materials SET title = :title, description = :description, url = :url, sort_order = :sort_order WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, material); err != nil {
		return fmt.Errorf("update course material: %w", err)
	}
	return nil
}

// Delete removes a material by id.
func (r *MaterialRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM course_materials WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course material: %w", err)
	}
	return nil
}
