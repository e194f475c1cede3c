package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/experience-booking/internal/model"
)

// HoldRepo provides access to the holds table.  Each rtb reservation has
// exactly one hold; the row is kept after expiry so the token stays
// resolvable in admin views.
type HoldRepo struct {
	db *sql.DB
}

// NewHoldRepo returns a new HoldRepo bound to the provided database.
func NewHoldRepo(db *sql.DB) *HoldRepo { return &HoldRepo{db: db} }

// CreateTx inserts a hold within tx.  The caller commits or rolls back.
func (r *HoldRepo) CreateTx(ctx context.Context, tx *sql.Tx, h model.Hold) error {
	const q = `INSERT INTO holds (token, reservation_id, created_at, expires_at) VALUES (?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, h.Token, h.ReservationID, h.CreatedAt.UTC(), h.ExpiresAt.UTC())
	return infra(err, "insert hold")
}

// ExpiredAt lists holds whose reservation is still stored as rtb_held and
// whose expires_at is at or before now.  The comparison matches
// model.Hold.IsExpired so the sweeper and lazy reads agree.
func (r *HoldRepo) ExpiredAt(ctx context.Context, now time.Time, limit int) ([]model.Hold, error) {
	const q = `SELECT h.token, h.reservation_id, h.created_at, h.expires_at
	           FROM holds h JOIN reservations r ON r.id = h.reservation_id
	           WHERE r.status = ? AND h.expires_at <= ?
	           ORDER BY h.expires_at
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, model.StatusRTBHeld, now.UTC(), limit)
	if err != nil {
		return nil, infra(err, "list expired holds")
	}
	defer rows.Close()
	var holds []model.Hold
	for rows.Next() {
		var h model.Hold
		if err := rows.Scan(&h.Token, &h.ReservationID, &h.CreatedAt, &h.ExpiresAt); err != nil {
			return nil, infra(err, "scan hold")
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, infra(err, "list expired holds")
	}
	return holds, nil
}
