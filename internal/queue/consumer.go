package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// NoticeFile is the file inside the notice directory that receives one line
// per handled event.
const NoticeFile = "notifications.log"

// Consumer listens on the member lifecycle queues and appends a notice
// line for every event to <Dir>/notifications.log.
type Consumer struct {
	URL    string
	Dir    string
	Logger *logrus.Logger
}

// NewConsumer returns a Consumer for the broker at url.
func NewConsumer(url, dir string, logger *logrus.Logger) *Consumer {
	return &Consumer{URL: url, Dir: dir, Logger: logger}
}

// Run connects to RabbitMQ, declares the lifecycle queues (durable) and
// consumes them until ctx is cancelled.  Lost connections are re-dialled
// with exponential backoff capped at 30s.  Messages that cannot be handled
// are rejected without requeue so one bad payload cannot loop forever.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Logger.WithError(err).WithField("retry_in", backoff.String()).Warn("notice-consumer: dial failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Logger.WithError(err).Warn("notice-consumer: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
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

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Logger.WithError(err).Warn("notice-consumer: set QoS failed")
	}

	deliveries := make(chan amqp.Delivery)
	done := make(chan struct{})
	defer close(done)
	for _, name := range QueueNames() {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		go func(msgs <-chan amqp.Delivery) {
			for d := range msgs {
				select {
				case deliveries <- d:
				case <-done:
					return
				}
			}
		}(msgs)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return errors.New("channel closed")
		case d := <-deliveries:
			if err := c.HandleMessage(d.Body); err != nil {
				c.Logger.WithError(err).WithField("queue", d.RoutingKey).Error("notice-consumer: handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one MemberEvent and appends its notice line.
func (c *Consumer) HandleMessage(body []byte) error {
	var ev MemberEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	line, err := noticeLine(ev)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.Dir, NoticeFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open notice file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write notice: %w", err)
	}
	c.Logger.WithFields(logrus.Fields{
		"event_id":  ev.EventID,
		"type":      ev.Type,
		"member_id": ev.MemberID,
	}).Info("notice written")
	return nil
}

func noticeLine(ev MemberEvent) (string, error) {
	switch ev.Type {
	case EventMemberRegistered:
		return fmt.Sprintf("[%s] Welcome notice | member_id=%s | name=%q | email=%s | company=%q | department=%q\n",
			ev.OccurredAt, ev.MemberID, ev.FullName, ev.Email, ev.CompanyName, ev.Department), nil
	case EventMemberDeactivated:
		return fmt.Sprintf("[%s] Membership ended | member_id=%s | name=%q | email=%s | end_date=%s\n",
			ev.OccurredAt, ev.MemberID, ev.FullName, ev.Email, ev.MembershipEndDate), nil
	}
	return "", fmt.Errorf("unknown event type %q", ev.Type)
}
