package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// SessionEventsQueue is the durable queue session events are routed to.
const SessionEventsQueue = "table.session.events"

// ErrPublisherBusy is returned by Publish when the outgoing buffer is full.
var ErrPublisherBusy = errors.New("event buffer full")

// Publisher sends SessionEvents to RabbitMQ.  Publish only enqueues the
// event so request handlers never wait on the broker; Run owns the
// connection and drains the buffer, reconnecting with backoff when the
// broker goes away.
type Publisher struct {
	URL   string
	Queue string
	ch    chan SessionEvent
}

// NewPublisher returns a Publisher for the broker at url buffering up to
// size events.
func NewPublisher(url string, size int) *Publisher {
	if size <= 0 {
		size = 256
	}
	return &Publisher{URL: url, Queue: SessionEventsQueue, ch: make(chan SessionEvent, size)}
}

// Publish assigns the event an ID and timestamp when missing and queues
// it for delivery.
func (p *Publisher) Publish(ctx context.Context, ev SessionEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt == "" {
		ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}
	select {
	case p.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrPublisherBusy
	}
}

// Run delivers queued events until ctx is cancelled.  An event whose
// publish fails is retried on the next connection.
func (p *Publisher) Run(ctx context.Context) error {
	backoff := time.Second
	var pending *SessionEvent
	for {
		conn, err := amqp.Dial(p.URL)
		if err != nil {
			logrus.WithError(err).Warnf("publisher: failed to dial broker; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		pending, err = p.publishLoop(ctx, conn, pending)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logrus.WithError(err).Warn("publisher: connection lost; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

// publishLoop returns the event it failed to deliver, if any.
func (p *Publisher) publishLoop(ctx context.Context, conn *amqp.Connection, pending *SessionEvent) (*SessionEvent, error) {
	ch, err := conn.Channel()
	if err != nil {
		return pending, fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		return pending, fmt.Errorf("queue declare: %w", err)
	}

	for {
		if pending == nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case ev := <-p.ch:
				pending = &ev
			}
		}
		pub, err := encodeEvent(*pending)
		if err != nil {
			logrus.WithError(err).WithField("event_id", pending.ID).Error("publisher: dropping unencodable event")
			pending = nil
			continue
		}
		if err := ch.PublishWithContext(ctx,
			"",      // default exchange
			p.Queue, // routing key = queue name
			false,   // mandatory
			false,   // immediate
			pub,
		); err != nil {
			return pending, fmt.Errorf("publish: %w", err)
		}
		logrus.WithFields(logrus.Fields{"event": pending.Type, "event_id": pending.ID}).Debug("publisher: event sent")
		pending = nil
	}
}

func encodeEvent(ev SessionEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}
