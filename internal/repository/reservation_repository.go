package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/experience-booking/internal/model"
)

// ReservationRepo provides access to the reservations table.  Reads join the
// holds table so rtb reservations come back with their hold attached, which
// is what the lazy expiry check needs.  All timestamps are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// claimingStatuses are the stored statuses that may hold capacity.
var claimingStatuses = []model.ReservationStatus{
	model.StatusConfirmed, model.StatusPendingPayment, model.StatusRTBHeld,
}

const reservationSelect = `SELECT r.id, r.slot_id, r.order_id, r.status, r.mode, r.party, r.customer_ref,
	r.attribution, r.approved_at, r.created_at, r.updated_at,
	h.token, h.created_at, h.expires_at
	FROM reservations r LEFT JOIN holds h ON h.reservation_id = r.id`

func scanReservation(row rowScanner) (model.Reservation, error) {
	var (
		res                      model.Reservation
		orderID                  sql.NullString
		party, attribution       []byte
		approvedAt               sql.NullTime
		holdToken                sql.NullString
		holdCreated, holdExpires sql.NullTime
	)
	if err := row.Scan(&res.ID, &res.SlotID, &orderID, &res.Status, &res.Mode, &party, &res.CustomerRef,
		&attribution, &approvedAt, &res.CreatedAt, &res.UpdatedAt,
		&holdToken, &holdCreated, &holdExpires); err != nil {
		return model.Reservation{}, err
	}
	if orderID.Valid {
		id := orderID.String
		res.OrderID = &id
	}
	p, err := decodeMap[int](party)
	if err != nil {
		return model.Reservation{}, errors.Wrap(err, "decode party")
	}
	res.Party = p
	if len(attribution) > 0 {
		if err := json.Unmarshal(attribution, &res.Attribution); err != nil {
			return model.Reservation{}, errors.Wrap(err, "decode attribution")
		}
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		res.ApprovedAt = &t
	}
	if holdToken.Valid {
		res.Hold = &model.Hold{
			Token:         holdToken.String,
			ReservationID: res.ID,
			CreatedAt:     holdCreated.Time,
			ExpiresAt:     holdExpires.Time,
		}
	}
	return res, nil
}

// GetByID returns one reservation with its hold, or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (model.Reservation, error) {
	return getReservation(ctx, r.db, reservationSelect+` WHERE r.id = ?`, id)
}

// GetForSlotTx reads a reservation of slotID inside tx and locks its row.
func (r *ReservationRepo) GetForSlotTx(ctx context.Context, tx *sql.Tx, slotID, id uint64) (model.Reservation, error) {
	return getReservation(ctx, tx, reservationSelect+` WHERE r.id = ? AND r.slot_id = ? FOR UPDATE`, id, slotID)
}

func getReservation(ctx context.Context, q querier, query string, args ...any) (model.Reservation, error) {
	res, err := scanReservation(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, ErrNotFound
	}
	if err != nil {
		return model.Reservation{}, infra(err, "select reservation")
	}
	return res, nil
}

// List returns reservations matching f ordered by ID.
func (r *ReservationRepo) List(ctx context.Context, f ReservationFilter) ([]model.Reservation, error) {
	var (
		where []string
		args  []any
	)
	if f.SlotID != 0 {
		where = append(where, "r.slot_id = ?")
		args = append(args, f.SlotID)
	}
	if f.AfterID != 0 {
		where = append(where, "r.id > ?")
		args = append(args, f.AfterID)
	}
	if len(f.Statuses) > 0 {
		where = append(where, "r.status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	query := reservationSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return listReservations(ctx, r.db, query, args...)
}

// ClaimingBySlots groups the possibly claiming reservations of many slots.
func (r *ReservationRepo) ClaimingBySlots(ctx context.Context, slotIDs []uint64) (map[uint64][]model.Reservation, error) {
	out := make(map[uint64][]model.Reservation, len(slotIDs))
	if len(slotIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(slotIDs)+len(claimingStatuses))
	for _, id := range slotIDs {
		args = append(args, id)
	}
	for _, s := range claimingStatuses {
		args = append(args, s)
	}
	query := reservationSelect + ` WHERE r.slot_id IN (` + placeholders(len(slotIDs)) + `)
		AND r.status IN (` + placeholders(len(claimingStatuses)) + `) ORDER BY r.id`
	list, err := listReservations(ctx, r.db, query, args...)
	if err != nil {
		return nil, err
	}
	for _, res := range list {
		out[res.SlotID] = append(out[res.SlotID], res)
	}
	return out, nil
}

// ClaimingBySlotTx lists the possibly claiming reservations of a locked slot.
func (r *ReservationRepo) ClaimingBySlotTx(ctx context.Context, tx *sql.Tx, slotID uint64) ([]model.Reservation, error) {
	args := []any{slotID}
	for _, s := range claimingStatuses {
		args = append(args, s)
	}
	query := reservationSelect + ` WHERE r.slot_id = ? AND r.status IN (` + placeholders(len(claimingStatuses)) + `) ORDER BY r.id`
	return listReservations(ctx, tx, query, args...)
}

func listReservations(ctx context.Context, q querier, query string, args ...any) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, infra(err, "list reservations")
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, infra(err, "scan reservation")
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, infra(err, "list reservations")
	}
	return out, nil
}

// CreateTx inserts a reservation within tx and populates its generated ID.
// The hold, when present, is written by HoldRepo.CreateTx.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	party, err := encodeMap(res.Party)
	if err != nil {
		return errors.Wrap(err, "encode party")
	}
	attribution, err := encodeMap(res.Attribution)
	if err != nil {
		return errors.Wrap(err, "encode attribution")
	}
	const q = `INSERT INTO reservations (slot_id, order_id, status, mode, party, customer_ref, attribution,
		approved_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, res.SlotID, res.OrderID, res.Status, res.Mode, party, res.CustomerRef,
		attribution, res.ApprovedAt, res.CreatedAt.UTC(), res.UpdatedAt.UTC())
	if err != nil {
		return infra(err, "insert reservation")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return infra(err, "reservation id")
	}
	res.ID = uint64(id)
	return nil
}

// UpdateTx writes the transition columns of a reservation.
func (r *ReservationRepo) UpdateTx(ctx context.Context, tx *sql.Tx, res model.Reservation) error {
	const q = `UPDATE reservations SET status = ?, order_id = ?, approved_at = ?, updated_at = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, res.Status, res.OrderID, res.ApprovedAt, res.UpdatedAt.UTC(), res.ID)
	return infra(err, "update reservation")
}
