package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/albapepper/nearlist/internal/engine"
	"github.com/albapepper/nearlist/internal/notifications"
	"github.com/albapepper/nearlist/internal/zone"
)

func startHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestHub_SendStreamsNotification(t *testing.T) {
	hub, conn := startHub(t)

	cmd := notifications.Command{Kind: notifications.Arrival, Title: "📍 Near Market!", Tag: "store-1", StoreID: "1"}
	if err := hub.Send(context.Background(), cmd); err != nil {
		t.Fatalf("send: %v", err)
	}

	msg := readMessage(t, conn)
	if msg["type"] != TypeNotification {
		t.Fatalf("expected notification, got %v", msg["type"])
	}
	payload := msg["payload"].(map[string]interface{})
	if payload["tag"] != "store-1" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestHub_OnOutcomeStreamsTransition(t *testing.T) {
	hub, conn := startHub(t)

	hub.OnOutcome(engine.Outcome{Event: zone.Event{Kind: zone.Leave, Store: zone.Store{ID: "7"}}})

	msg := readMessage(t, conn)
	if msg["type"] != TypeTransition {
		t.Fatalf("expected transition, got %v", msg["type"])
	}
	event := msg["payload"].(map[string]interface{})["event"].(map[string]interface{})
	if event["kind"] != "leave" {
		t.Fatalf("expected leave, got %v", event["kind"])
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub, conn := startHub(t)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
