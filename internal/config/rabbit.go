package config

import "time"

// RabbitConfig locates the broker lifecycle events are relayed to.  An
// empty URL keeps events in the outbox log only.
type RabbitConfig struct {
	URL               string
	Exchange          string
	NotificationQueue string
	PollInterval      time.Duration
}

func LoadRabbitConfig() RabbitConfig {
	url := envStr("RABBITMQ_URL", "")
	if url == "" {
		url = envStr("AMQP_URL", "")
	}
	return RabbitConfig{
		URL:               url,
		Exchange:          envStr("EVENTS_EXCHANGE", "booking.lifecycle"),
		NotificationQueue: envStr("EVENTS_NOTIFICATION_QUEUE", "booking.notifications"),
		PollInterval:      envDur("OUTBOX_POLL_INTERVAL", time.Second),
	}
}
