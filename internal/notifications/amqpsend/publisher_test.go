package amqpsend

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/albapepper/nearlist/internal/notifications"
)

type mockChannel struct {
	publishFn func(ctx context.Context, exchange, key string, msg amqp.Publishing) error
	calls     []amqp.Publishing
	exchanges []string
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	m.calls = append(m.calls, msg)
	m.exchanges = append(m.exchanges, exchange)
	if m.publishFn != nil {
		return m.publishFn(ctx, exchange, key, msg)
	}
	return nil
}

func (m *mockChannel) Close() error { return nil }

func TestSend_PublishesJSON(t *testing.T) {
	ch := &mockChannel{}
	p := &Publisher{ch: ch}
	at := time.Unix(1715003456, 0)

	err := p.Send(context.Background(), notifications.Command{
		Kind:      notifications.Arrival,
		Title:     "📍 Near Green Grocer!",
		Body:      "You're 40m away. 2 items on your list.",
		Tag:       "store-42",
		StoreID:   "42",
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(ch.calls))
	}
	if ch.exchanges[0] != ExchangeName {
		t.Errorf("expected exchange %s, got %s", ExchangeName, ch.exchanges[0])
	}
	msg := ch.calls[0]
	if msg.ContentType != "application/json" || msg.MessageId != "store-42" {
		t.Errorf("unexpected publishing headers: %+v", msg)
	}

	var got pushMessage
	if err := json.Unmarshal(msg.Body, &got); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if got.Kind != "arrival" || got.StoreID != "42" || got.Timestamp != at.UnixMilli() {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestSend_WrapsPublishError(t *testing.T) {
	ch := &mockChannel{publishFn: func(context.Context, string, string, amqp.Publishing) error {
		return amqp.ErrClosed
	}}
	p := &Publisher{ch: ch}

	err := p.Send(context.Background(), notifications.Command{Tag: "departed-1"})
	if !errors.Is(err, amqp.ErrClosed) {
		t.Fatalf("expected wrapped ErrClosed, got %v", err)
	}
}
