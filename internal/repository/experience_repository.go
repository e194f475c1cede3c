package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/experience-booking/internal/model"
)

// ExperienceRepo reads experience booking configuration.  The rows are
// written by the content management side; this service never updates them.
type ExperienceRepo struct {
	db *sql.DB
}

// NewExperienceRepo returns a new ExperienceRepo bound to the provided database.
func NewExperienceRepo(db *sql.DB) *ExperienceRepo { return &ExperienceRepo{db: db} }

// GetByID returns the experience with the given ID or ErrNotFound.
func (r *ExperienceRepo) GetByID(ctx context.Context, id uint64) (model.Experience, error) {
	const q = `SELECT id, name, timezone, recurrence, default_capacity_total, default_capacity_per_type, default_prices
	           FROM experiences WHERE id = ?`
	var (
		e                          model.Experience
		recurrence, perType, price []byte
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(&e.ID, &e.Name, &e.Timezone, &recurrence,
		&e.DefaultCapacityTotal, &perType, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Experience{}, ErrNotFound
	}
	if err != nil {
		return model.Experience{}, infra(err, "select experience")
	}
	if len(recurrence) > 0 {
		if err := json.Unmarshal(recurrence, &e.Recurrence); err != nil {
			return model.Experience{}, errors.Wrap(err, "decode recurrence")
		}
	}
	if e.DefaultCapacityPerType, err = decodeMap[int](perType); err != nil {
		return model.Experience{}, errors.Wrap(err, "decode default_capacity_per_type")
	}
	if e.DefaultPrices, err = decodeMap[int](price); err != nil {
		return model.Experience{}, errors.Wrap(err, "decode default_prices")
	}
	return e, nil
}
