package events

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	domain "github.com/savora/api/internal/domain"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("hub did not stop")
		}
	})
	return hub, cancel
}

func registerTestClient(t *testing.T, hub *Hub, buffer int) *client {
	t.Helper()
	c := &client{send: make(chan Event, buffer), hub: hub}
	select {
	case hub.register <- c:
	case <-time.After(time.Second):
		t.Fatal("register timed out")
	}
	return c
}

func waitForEvent(t *testing.T, c *client) Event {
	t.Helper()
	select {
	case event := <-c.send:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	hub, _ := startHub(t)

	first := registerTestClient(t, hub, 4)
	second := registerTestClient(t, hub, 4)

	if count := waitForCount(t, hub, 2); count != 2 {
		t.Fatalf("expected 2 clients, got %d", count)
	}

	event := NewEvent(TypeStatusChanged, StatusChangedPayload{
		OrderID: "ord_1",
		UserID:  "usr_1",
		Status:  domain.OrderStatusPreparing,
		Version: 2,
	}, time.Now())
	if err := hub.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, c := range []*client{first, second} {
		got := waitForEvent(t, c)
		if got.Type != TypeStatusChanged {
			t.Errorf("unexpected event type: %s", got.Type)
		}
		payload, ok := got.Data.(StatusChangedPayload)
		if !ok {
			t.Fatalf("unexpected payload type %T", got.Data)
		}
		if payload.OrderID != "ord_1" || payload.Version != 2 {
			t.Errorf("unexpected payload: %+v", payload)
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub, _ := startHub(t)

	slow := registerTestClient(t, hub, 1)
	if count := waitForCount(t, hub, 1); count != 1 {
		t.Fatalf("expected 1 client, got %d", count)
	}

	// The first event fills the client buffer; the second forces the drop.
	for i := 0; i < 2; i++ {
		event := NewEvent(TypePaymentUpdated, PaymentUpdatedPayload{OrderID: "ord_1", Payment: true, Version: int64(i + 1)}, time.Now())
		if err := hub.Publish(context.Background(), event); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	if count := waitForCount(t, hub, 0); count != 0 {
		t.Fatalf("expected slow client to be dropped, count %d", count)
	}

	// The dropped client's channel is closed after draining the buffered event.
	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Error("expected send channel to be closed")
	}
}

func TestHubPublishAfterStop(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	err := hub.Publish(context.Background(), NewEvent(TypeOrderPlaced, nil, time.Now()))
	if !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
}

func TestHandleWebSocketAfterStopClosesConnection(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// With nothing servicing registrations the handler must close the socket
	// instead of parking its goroutine on the register channel.
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to be closed")
	}
	if count := hub.ClientCount(); count != 0 {
		t.Fatalf("expected no registered clients, got %d", count)
	}
}

func TestTeeDeliversToAllEvenOnFailure(t *testing.T) {
	var delivered []string
	failing := PublisherFunc(func(context.Context, Event) error {
		delivered = append(delivered, "failing")
		return errors.New("boom")
	})
	working := PublisherFunc(func(_ context.Context, e Event) error {
		delivered = append(delivered, "working:"+e.Type)
		return nil
	})

	err := Tee{failing, working}.Publish(context.Background(), NewEvent(TypeOrderPlaced, nil, time.Now()))
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(delivered) != 2 || delivered[1] != "working:orderPlaced" {
		t.Fatalf("unexpected delivery order: %v", delivered)
	}
}

func waitForCount(t *testing.T, hub *Hub, want int) int {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return want
		}
		time.Sleep(5 * time.Millisecond)
	}
	return hub.ClientCount()
}
