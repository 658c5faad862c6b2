package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/univlabs/qr-attendance-api/internal/models"
	appErrors "github.com/univlabs/qr-attendance-api/pkg/errors"
)

// HolidayRepository persists calendar exceptions.
type HolidayRepository struct {
	db *sqlx.DB
}

// NewHolidayRepository constructs the repository.
func NewHolidayRepository(db *sqlx.DB) *HolidayRepository {
	return &HolidayRepository{db: db}
}

// List returns all holidays ordered by date.
func (r *HolidayRepository) List(ctx context.Context) ([]models.Holiday, error) {
	const query = `SELECT id, date, name, created_at FROM holidays ORDER BY date ASC`
	var holidays []models.Holiday
	if err := r.db.SelectContext(ctx, &holidays, query); err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	return holidays, nil
}

// FindByID loads a holiday by id.
func (r *HolidayRepository) FindByID(ctx context.Context, id string) (*models.Holiday, error) {
	const query = `SELECT id, date, name, created_at FROM holidays WHERE id = $1`
	var holiday models.Holiday
	if err := r.db.GetContext(ctx, &holiday, query, id); err != nil {
		return nil, err
	}
	return &holiday, nil
}

// ExistsByDate reports whether a holiday falls on the given date.
func (r *HolidayRepository) ExistsByDate(ctx context.Context, date time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM holidays WHERE date = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, date); err != nil {
		return false, fmt.Errorf("check holiday date: %w", err)
	}
	return exists, nil
}

// DatesBetween returns the set of holiday dates inside [from, to], keyed by
// the date's YYYY-MM-DD form.
func (r *HolidayRepository) DatesBetween(ctx context.Context, from, to time.Time) (map[string]struct{}, error) {
	const query = `SELECT date FROM holidays WHERE date >= $1 AND date <= $2`
	var dates []time.Time
	if err := r.db.SelectContext(ctx, &dates, query, from, to); err != nil {
		return nil, fmt.Errorf("list holiday dates: %w", err)
	}
	set := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		set[d.Format("2006-01-02")] = struct{}{}
	}
	return set, nil
}

// Create stores a new holiday; dates are unique.
func (r *HolidayRepository) Create(ctx context.Context, holiday *models.Holiday) error {
	if holiday.ID == "" {
		holiday.ID = uuid.NewString()
	}
	holiday.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO holidays (id, date, name, created_at) VALUES (:id, :date, :name, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, holiday); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return appErrors.Clone(appErrors.ErrConflict, "a holiday already exists on this date")
		}
		return fmt.Errorf("create holiday: %w", err)
	}
	return nil
}

// Delete removes a holiday by id.
func (r *HolidayRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM holidays WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete holiday: %w", err)
	}
	return nil
}
