package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/experience-booking/internal/model"
)

// EventRepo is the transactional outbox.  Events are appended in the same
// transaction as the state change they describe and picked up afterwards
// by the dispatcher, which gives at-least-once delivery.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the provided database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// AppendTx records ev inside tx.
func (r *EventRepo) AppendTx(ctx context.Context, tx *sql.Tx, ev model.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return errors.Wrap(err, "encode event payload")
	}
	const q = `INSERT INTO lifecycle_events (event_id, type, reservation_id, payload, occurred_at) VALUES (?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q, ev.ID, ev.Type, ev.Payload.ReservationID, payload, ev.OccurredAt.UTC())
	return infra(err, "insert event")
}

// Pending returns up to limit undispatched events in commit order.
func (r *EventRepo) Pending(ctx context.Context, limit int) ([]model.Event, error) {
	const q = `SELECT seq, event_id, type, payload, occurred_at FROM lifecycle_events
	           WHERE dispatched_at IS NULL ORDER BY seq LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, infra(err, "list pending events")
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		var (
			ev      model.Event
			payload []byte
		)
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.Type, &payload, &ev.OccurredAt); err != nil {
			return nil, infra(err, "scan event")
		}
		if err := json.Unmarshal(payload, &ev.Payload); err != nil {
			return nil, errors.Wrapf(err, "decode event %s", ev.ID)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, infra(err, "list pending events")
	}
	return out, nil
}

// MarkDispatched stamps the given events as relayed.
func (r *EventRepo) MarkDispatched(ctx context.Context, seqs []uint64, at time.Time) error {
	if len(seqs) == 0 {
		return nil
	}
	args := make([]any, 0, len(seqs)+1)
	args = append(args, at.UTC())
	for _, s := range seqs {
		args = append(args, s)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE lifecycle_events SET dispatched_at = ? WHERE seq IN (`+placeholders(len(seqs))+`)`, args...)
	return infra(err, "mark events dispatched")
}
