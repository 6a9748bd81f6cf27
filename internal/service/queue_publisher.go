package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/union-registry/internal/queue"
)

// EventPublisher delivers member lifecycle events.  Implementations must be
// safe for concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.MemberEvent) error
}

// AMQPPublisher publishes events to RabbitMQ, one durable queue per event
// type.  It dials per publish, so a broker outage never outlives the
// request that hit it.
type AMQPPublisher struct {
	URL    string
	Logger *logrus.Logger
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url string, logger *logrus.Logger) *AMQPPublisher {
	return &AMQPPublisher{URL: url, Logger: logger}
}

// Publish sends ev as a persistent JSON message routed to the queue named
// after ev.Type.  Errors are logged and returned.
func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.MemberEvent) error {
	log := p.Logger.WithFields(logrus.Fields{"event_id": ev.EventID, "type": ev.Type})

	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(ev.Type, true, false, false, false, nil); err != nil {
		log.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", ev.Type, false, false, pub); err != nil {
		log.WithError(err).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}

// NopPublisher discards events.  It is used when EVENTS_ENABLED is false.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.MemberEvent) error { return nil }
