// Package amqpsend publishes notification commands to RabbitMQ so a
// separate push gateway can present them on the user's devices.
package amqpsend

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/albapepper/nearlist/internal/notifications"
)

var _ notifications.Sender = (*Publisher)(nil)

const (
	ExchangeName = "nearlist.notifications"
	QueueName    = "nearlist_push"
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends commands to a fanout exchange.
type Publisher struct {
	ch channel
}

// New declares the exchange and queue on conn and returns a publisher.
func New(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(QueueName, "", ExchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &Publisher{ch: ch}, nil
}

// Dial connects to url and returns a ready publisher together with the
// connection, which the caller closes on shutdown.
func Dial(url string) (*Publisher, *amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	pub, err := New(conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return pub, conn, nil
}

type pushMessage struct {
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Tag       string `json:"tag"`
	StoreID   string `json:"store_id"`
	Timestamp int64  `json:"timestamp"`
}

// Send publishes cmd as JSON. The tag doubles as the AMQP message ID so
// consumers can collapse duplicates.
func (p *Publisher) Send(ctx context.Context, cmd notifications.Command) error {
	body, err := json.Marshal(pushMessage{
		Kind:      string(cmd.Kind),
		Title:     cmd.Title,
		Body:      cmd.Body,
		Tag:       cmd.Tag,
		StoreID:   cmd.StoreID,
		Timestamp: cmd.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := p.ch.PublishWithContext(ctx, ExchangeName, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   cmd.Tag,
		Timestamp:   cmd.CreatedAt,
		Body:        body,
	}); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close closes the channel.
func (p *Publisher) Close() error {
	return p.ch.Close()
}
