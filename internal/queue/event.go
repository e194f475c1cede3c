// Package queue relays reservation lifecycle events from the outbox to a
// RabbitMQ topic exchange and consumes them on the other side.  Delivery is
// at least once: an event is marked dispatched only after the broker took
// it, so a crash in between publishes it again and consumers drop repeats
// by event id.
package queue

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/experience-booking/internal/model"
)

// DefaultExchange is the topic exchange lifecycle events are published to.
// The routing key is the event type, e.g. "hold.expired".
const DefaultExchange = "booking.lifecycle"

// Encode renders an event as the JSON message body.
func Encode(ev model.Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrapf(err, "encode event %s", ev.ID)
	}
	return body, nil
}

// Decode parses a message body produced by Encode.
func Decode(body []byte) (model.Event, error) {
	var ev model.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return model.Event{}, errors.Wrap(err, "decode event")
	}
	if ev.ID == "" || ev.Type == "" {
		return model.Event{}, errors.New("event without id or type")
	}
	return ev, nil
}
