package queue

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/model"
)

// Publisher hands one event to the broker.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// RabbitPublisher publishes events as persistent JSON messages to a topic
// exchange.  The connection is opened on first use and reopened after a
// failure.
type RabbitPublisher struct {
	url      string
	exchange string
	log      *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitPublisher returns a publisher for exchange on the broker at url.
func NewRabbitPublisher(url, exchange string, log *zap.Logger) *RabbitPublisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RabbitPublisher{url: url, exchange: exchange, log: log}
}

// declareExchange makes sure the lifecycle exchange exists.  Durable so
// bindings survive broker restarts.
func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,    // name
		"topic", // kind
		true,    // durable
		false,   // autoDelete
		false,   // internal
		false,   // noWait
		nil,     // args
	)
}

func (p *RabbitPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, errors.Wrap(err, "rabbitmq dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "rabbitmq channel open")
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "rabbitmq confirm mode")
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "rabbitmq exchange declare %s", p.exchange)
	}
	p.conn, p.ch = conn, ch
	p.log.Info("rabbitmq publisher connected", zap.String("exchange", p.exchange))
	return ch, nil
}

// Publish sends ev and waits for the broker to confirm it.
func (p *RabbitPublisher) Publish(ctx context.Context, ev model.Event) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		p.exchange,      // exchange
		string(ev.Type), // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Type:         string(ev.Type),
			Timestamp:    ev.OccurredAt.UTC(),
			Body:         body,
		},
	)
	if err != nil {
		p.closeLocked()
		return errors.Wrapf(err, "publish event %s", ev.ID)
	}
	ok, err := conf.WaitContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "confirm event %s", ev.ID)
	}
	if !ok {
		return errors.Newf("broker nacked event %s", ev.ID)
	}
	return nil
}

func (p *RabbitPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

// LogPublisher writes events to the log instead of a broker.  It stands in
// when no RABBITMQ_URL is configured.
type LogPublisher struct {
	Log *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev model.Event) error {
	p.Log.Info("lifecycle event",
		zap.String("event_id", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.Uint64("reservation_id", ev.Payload.ReservationID),
		zap.Time("occurred_at", ev.OccurredAt),
	)
	return nil
}

var (
	_ Publisher = (*RabbitPublisher)(nil)
	_ Publisher = LogPublisher{}
)
