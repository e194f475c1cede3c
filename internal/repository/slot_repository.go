package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/experience-booking/internal/model"
)

// SlotRepo provides data access to the slots table.  Times are stored as
// UTC DATETIME values; the DSN sets loc=UTC so they scan back as UTC.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo returns a new SlotRepo bound to the provided database.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

const slotColumns = `id, experience_id, starts_at, ends_at, status, capacity_total,
	capacity_per_type, price_snapshot, created_at, updated_at`

func scanSlot(row rowScanner) (model.Slot, error) {
	var (
		s                model.Slot
		perType, pricing []byte
	)
	if err := row.Scan(&s.ID, &s.ExperienceID, &s.StartsAt, &s.EndsAt, &s.Status, &s.CapacityTotal,
		&perType, &pricing, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return model.Slot{}, err
	}
	var err error
	if s.CapacityPerType, err = decodeMap[int](perType); err != nil {
		return model.Slot{}, errors.Wrap(err, "decode capacity_per_type")
	}
	if s.PriceSnapshot, err = decodeMap[int](pricing); err != nil {
		return model.Slot{}, errors.Wrap(err, "decode price_snapshot")
	}
	return s, nil
}

// GetByID returns the slot with the given ID or ErrNotFound.
func (r *SlotRepo) GetByID(ctx context.Context, id uint64) (model.Slot, error) {
	return getSlot(ctx, r.db, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id)
}

// LockTx reads the slot row with an exclusive row lock held until tx ends.
// Every capacity decision for the slot is made after this call.
func (r *SlotRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Slot, error) {
	return getSlot(ctx, tx, `SELECT `+slotColumns+` FROM slots WHERE id = ? FOR UPDATE`, id)
}

// FindByOccurrence returns the slot of an experience with exactly the given
// start and end, or ErrNotFound.
func (r *SlotRepo) FindByOccurrence(ctx context.Context, experienceID uint64, start, end time.Time) (model.Slot, error) {
	return getSlot(ctx, r.db,
		`SELECT `+slotColumns+` FROM slots WHERE experience_id = ? AND starts_at = ? AND ends_at = ?`,
		experienceID, start.UTC(), end.UTC())
}

func getSlot(ctx context.Context, q querier, query string, args ...any) (model.Slot, error) {
	s, err := scanSlot(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Slot{}, ErrNotFound
	}
	if err != nil {
		return model.Slot{}, infra(err, "select slot")
	}
	return s, nil
}

// ListInRange returns slots overlapping [f.Start, f.End) ordered by start.
// Closed and cancelled slots are included so calendar views can show them.
func (r *SlotRepo) ListInRange(ctx context.Context, f SlotFilter) ([]model.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE starts_at < ? AND ends_at > ?`
	args := []any{f.End.UTC(), f.Start.UTC()}
	if f.ExperienceID != 0 {
		query += ` AND experience_id = ?`
		args = append(args, f.ExperienceID)
	}
	query += ` ORDER BY starts_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, infra(err, "list slots")
	}
	defer rows.Close()
	var out []model.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, infra(err, "scan slot")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, infra(err, "list slots")
	}
	return out, nil
}

// Create inserts a slot and populates its generated ID.  A slot for the same
// experience occurrence yields ErrDuplicate.
func (r *SlotRepo) Create(ctx context.Context, s *model.Slot) error {
	perType, err := encodeMap(s.CapacityPerType)
	if err != nil {
		return errors.Wrap(err, "encode capacity_per_type")
	}
	pricing, err := encodeMap(s.PriceSnapshot)
	if err != nil {
		return errors.Wrap(err, "encode price_snapshot")
	}
	const q = `INSERT INTO slots (experience_id, starts_at, ends_at, status, capacity_total,
		capacity_per_type, price_snapshot, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, s.ExperienceID, s.StartsAt.UTC(), s.EndsAt.UTC(), s.Status,
		s.CapacityTotal, perType, pricing, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if mysqlErrNumber(err) == mysqlDuplicateEntry {
		return ErrDuplicate
	}
	if err != nil {
		return infra(err, "insert slot")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return infra(err, "slot id")
	}
	s.ID = uint64(id)
	return nil
}

// UpdateTx writes the mutable columns of a slot locked by LockTx.
func (r *SlotRepo) UpdateTx(ctx context.Context, tx *sql.Tx, s model.Slot) error {
	perType, err := encodeMap(s.CapacityPerType)
	if err != nil {
		return errors.Wrap(err, "encode capacity_per_type")
	}
	const q = `UPDATE slots SET starts_at = ?, ends_at = ?, status = ?, capacity_total = ?,
		capacity_per_type = ?, updated_at = ? WHERE id = ?`
	_, err = tx.ExecContext(ctx, q, s.StartsAt.UTC(), s.EndsAt.UTC(), s.Status, s.CapacityTotal,
		perType, s.UpdatedAt.UTC(), s.ID)
	if mysqlErrNumber(err) == mysqlDuplicateEntry {
		return ErrDuplicate
	}
	return infra(err, "update slot")
}
