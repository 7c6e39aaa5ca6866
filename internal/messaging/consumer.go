package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"room-web/internal/session"
)

var errMalformedEvent = errors.New("malformed auth event")

// EventConsumer feeds auth events published by other instances into the
// local broker.
type EventConsumer struct {
	rmq        *RabbitMQ
	sink       session.EventPublisher
	instanceID string
}

func NewEventConsumer(rmq *RabbitMQ, sink session.EventPublisher) *EventConsumer {
	return &EventConsumer{
		rmq:        rmq,
		sink:       sink,
		instanceID: rmq.InstanceID(),
	}
}

func (c *EventConsumer) Start(ctx context.Context) error {
	queue, err := c.rmq.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	if err := c.rmq.channel.QueueBind(
		queue.Name,         // queue name
		"",                 // routing key
		AuthEventsExchange, // exchange
		false,
		nil,
	); err != nil {
		return err
	}

	msgs, err := c.rmq.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return err
	}

	slog.Info("started consuming auth events",
		slog.String("queue", queue.Name),
		slog.String("exchange", AuthEventsExchange))

	go c.loop(ctx, msgs)
	return nil
}

func (c *EventConsumer) loop(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping auth event consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("auth event consumer channel closed")
				return
			}
			if err := c.handleDelivery(ctx, msg); err != nil {
				slog.Error("dropping auth event",
					slog.String("error", err.Error()),
					slog.Int("body_size", len(msg.Body)))
			}
		}
	}
}

// handleDelivery skips events this instance published itself, since the
// local broker already saw them.
func (c *EventConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) error {
	if msg.AppId != "" && msg.AppId == c.instanceID {
		return nil
	}

	var event session.Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return errors.Join(errMalformedEvent, err)
	}
	if event.Key == "" {
		return errMalformedEvent
	}
	switch event.Type {
	case session.EventSignedIn, session.EventSignedOut, session.EventTokenRefreshed:
	default:
		return errMalformedEvent
	}

	return c.sink.Publish(ctx, event)
}
