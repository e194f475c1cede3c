package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/clock"
	"github.com/iliyamo/experience-booking/internal/repository"
)

// DefaultDispatchBatch bounds the events relayed per poll.
const DefaultDispatchBatch = 100

// Dispatcher relays outbox events to a Publisher in recording order.
type Dispatcher struct {
	outbox repository.Outbox
	pub    Publisher
	clock  clock.Clock
	log    *zap.Logger
	batch  int
}

// NewDispatcher returns a dispatcher draining outbox into pub.
func NewDispatcher(outbox repository.Outbox, pub Publisher, clk clock.Clock, log *zap.Logger) *Dispatcher {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{outbox: outbox, pub: pub, clock: clk, log: log, batch: DefaultDispatchBatch}
}

// RunOnce publishes one batch of pending events.  It stops at the first
// publish failure so later events are not sent ahead of it, marks what did
// go out, and returns the number published.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	events, err := d.outbox.PendingEvents(ctx, d.batch)
	if err != nil {
		return 0, err
	}
	sent := make([]uint64, 0, len(events))
	var pubErr error
	for _, ev := range events {
		if pubErr = d.pub.Publish(ctx, ev); pubErr != nil {
			d.log.Warn("event publish failed", zap.String("event_id", ev.ID),
				zap.String("type", string(ev.Type)), zap.Error(pubErr))
			break
		}
		sent = append(sent, ev.Seq)
	}
	if len(sent) > 0 {
		// A failure here republishes the batch later; consumers dedupe.
		if err := d.outbox.MarkDispatched(ctx, sent, d.clock.Now()); err != nil {
			return 0, err
		}
	}
	return len(sent), pubErr
}

// Run drains the outbox every interval until ctx is done.  A full batch is
// followed immediately by another poll.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	d.log.Info("outbox dispatcher started", zap.Duration("interval", interval))
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			d.log.Info("outbox dispatcher stopped")
			return
		case <-timer.C:
		}
		n, err := d.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			d.log.Error("outbox dispatch", zap.Error(err))
		}
		next := interval
		if err == nil && n == d.batch {
			next = 0
		}
		timer.Reset(next)
	}
}
