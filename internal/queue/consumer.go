package queue

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/model"
)

// DefaultNotificationQueue is the queue the notification consumer binds to
// the lifecycle exchange.
const DefaultNotificationQueue = "booking.notifications"

// Handler processes one delivered event.  An error rejects the message
// without requeue.
type Handler func(ctx context.Context, ev model.Event) error

// Consumer binds a durable queue to the lifecycle exchange and feeds each
// event to a Handler once, reconnecting with backoff when the broker goes
// away.
type Consumer struct {
	url      string
	exchange string
	queue    string
	keys     []string
	handle   Handler
	log      *zap.Logger
	seen     *dedupe
}

// NewConsumer returns a consumer for the given routing keys; none means all
// lifecycle events.
func NewConsumer(url, exchange, queue string, keys []string, h Handler, log *zap.Logger) *Consumer {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if queue == "" {
		queue = DefaultNotificationQueue
	}
	if len(keys) == 0 {
		keys = []string{"#"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{url: url, exchange: exchange, queue: queue, keys: keys, handle: h, log: log, seen: newDedupe(4096)}
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("consumer dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "channel open")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.Error(err))
	}
	if err := declareExchange(ch, c.exchange); err != nil {
		return errors.Wrap(err, "exchange declare")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "queue declare")
	}
	for _, key := range c.keys {
		if err := ch.QueueBind(c.queue, key, c.exchange, false, nil); err != nil {
			return errors.Wrapf(err, "queue bind %s", key)
		}
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "queue consume")
	}
	c.log.Info("consumer started", zap.String("queue", c.queue), zap.Strings("keys", c.keys))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.deliver(ctx, d.Body); err != nil {
				c.log.Warn("handle message failed", zap.String("message_id", d.MessageId), zap.Error(err))
				_ = d.Nack(false, false) // no requeue, avoids a tight redelivery loop
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// deliver decodes body and runs the handler unless the event was already
// handled.
func (c *Consumer) deliver(ctx context.Context, body []byte) error {
	ev, err := Decode(body)
	if err != nil {
		return err
	}
	if c.seen.has(ev.ID) {
		c.log.Debug("duplicate event dropped", zap.String("event_id", ev.ID))
		return nil
	}
	if err := c.handle(ctx, ev); err != nil {
		return errors.Wrapf(err, "handle %s %s", ev.Type, ev.ID)
	}
	c.seen.add(ev.ID)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// dedupe remembers the last n event ids.
type dedupe struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	ring []string
	next int
}

func newDedupe(n int) *dedupe {
	return &dedupe{ids: make(map[string]struct{}, n), ring: make([]string, n)}
}

func (d *dedupe) has(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.ids[id]
	return ok
}

func (d *dedupe) add(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.ids[id]; ok {
		return
	}
	if old := d.ring[d.next]; old != "" {
		delete(d.ids, old)
	}
	d.ring[d.next] = id
	d.ids[id] = struct{}{}
	d.next = (d.next + 1) % len(d.ring)
}

// NotificationLogger is the Handler used in place of the email and
// analytics collaborators: it writes one structured line per event.
func NotificationLogger(log *zap.Logger) Handler {
	return func(_ context.Context, ev model.Event) error {
		fields := []zap.Field{
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.Uint64("reservation_id", ev.Payload.ReservationID),
			zap.Uint64("slot_id", ev.Payload.SlotID),
			zap.Uint64("experience_id", ev.Payload.ExperienceID),
			zap.String("status", string(ev.Payload.Status)),
			zap.Int("seats", ev.Payload.Party.Total()),
			zap.Time("starts_at", ev.Payload.StartsAt),
		}
		if ev.Payload.CustomerRef != "" {
			fields = append(fields, zap.String("customer_ref", ev.Payload.CustomerRef))
		}
		if ev.Payload.Reason != "" {
			fields = append(fields, zap.String("reason", ev.Payload.Reason))
		}
		log.Info("notification", fields...)
		return nil
	}
}
