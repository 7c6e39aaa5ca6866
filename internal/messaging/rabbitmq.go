package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"room-web/internal/session"
)

// AuthEventsExchange fans auth-state transitions out to every instance.
const AuthEventsExchange = "auth.events"

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	instanceID string
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:       conn,
		channel:    ch,
		instanceID: uuid.NewString(),
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials with exponential backoff until ctx is done.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 0

	var rmq *RabbitMQ
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		rmq, err = NewRabbitMQ(url)
		if err != nil {
			slog.Warn("rabbitmq not ready",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
		return err
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, err
	}
	return rmq, nil
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		AuthEventsExchange, // name
		"fanout",           // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	); err != nil {
		return fmt.Errorf("failed to declare auth events exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// InstanceID tags messages published by this process.
func (r *RabbitMQ) InstanceID() string {
	return r.instanceID
}

// Publish sends an auth event to every instance. Events are transient:
// a subscriber that misses one re-reads the session on its next request.
func (r *RabbitMQ) Publish(ctx context.Context, event session.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal auth event: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		AuthEventsExchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         string(event.Type),
			AppId:        r.instanceID,
			Timestamp:    event.At,
			Body:         body,
			DeliveryMode: amqp.Transient,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish auth event: %w", err)
	}

	slog.Debug("published auth event", slog.String("type", string(event.Type)))
	return nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

// Ping reports whether the connection is still open.
func (r *RabbitMQ) Ping(ctx context.Context) error {
	if r.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// FanoutPublisher delivers events to the local broker first, then to the
// other instances.
type FanoutPublisher struct {
	local  session.EventPublisher
	remote session.EventPublisher
}

func NewFanoutPublisher(local, remote session.EventPublisher) *FanoutPublisher {
	return &FanoutPublisher{local: local, remote: remote}
}

func (p *FanoutPublisher) Publish(ctx context.Context, event session.Event) error {
	localErr := p.local.Publish(ctx, event)
	remoteErr := p.remote.Publish(ctx, event)
	return errors.Join(localErr, remoteErr)
}
