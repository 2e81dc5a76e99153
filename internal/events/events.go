package events

import (
	"context"
	"errors"
	"time"

	domain "github.com/savora/api/internal/domain"
)

// Event type names broadcast to connected clients.
const (
	TypeOrderPlaced    = "orderPlaced"
	TypeStatusChanged  = "statusChanged"
	TypePaymentUpdated = "paymentUpdated"
)

// Event is the JSON envelope delivered to every connected client.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// OrderPlacedPayload announces a newly confirmed (paid) order.
type OrderPlacedPayload struct {
	OrderID string             `json:"orderId"`
	UserID  string             `json:"userId"`
	Status  domain.OrderStatus `json:"status"`
	Amount  int64              `json:"amount"`
	Date    time.Time          `json:"date"`
	Version int64              `json:"version"`
}

// StatusChangedPayload announces an order lifecycle transition.
type StatusChangedPayload struct {
	OrderID string             `json:"orderId"`
	UserID  string             `json:"userId"`
	Status  domain.OrderStatus `json:"status"`
	Version int64              `json:"version"`
}

// PaymentUpdatedPayload announces the payment flag value after reconciliation.
type PaymentUpdatedPayload struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Payment bool   `json:"payment"`
	Version int64  `json:"version"`
}

// NewEvent stamps the envelope with the provided time.
func NewEvent(eventType string, data any, at time.Time) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
}

// Publisher delivers events to interested consumers. Implementations must be
// best-effort: a failed delivery never blocks or fails the caller's write.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts ordinary functions to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

// Publish invokes the wrapped function.
func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Tee fans an event out to several publishers, delivering to every one even
// when some fail and joining the failures.
type Tee []Publisher

// Publish delivers the event to each wrapped publisher.
func (t Tee) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range t {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
