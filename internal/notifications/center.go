package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	domain "github.com/savora/api/internal/domain"
	"github.com/savora/api/internal/events"
)

// ErrNotificationNotFound is returned when marking an absent entry as read.
var ErrNotificationNotFound = errors.New("notifications: not found")

type entryKey struct {
	orderID string
	role    domain.NotificationRole
}

// Center is an in-memory projection of broadcast events into role-scoped
// notifications. Entries are keyed by (orderID, role): later events supersede
// the entry in place instead of appending, and events carrying a version older
// than the stored one are discarded so out-of-order delivery cannot regress
// what a dashboard shows.
type Center struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries map[entryKey]domain.Notification
}

// NewCenter constructs an empty notification centre.
func NewCenter(logger *zap.Logger) *Center {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Center{
		logger:  logger,
		entries: make(map[entryKey]domain.Notification),
	}
}

// Publish implements events.Publisher, deriving notifications per role.
func (c *Center) Publish(_ context.Context, event events.Event) error {
	if c == nil {
		return errors.New("notifications: center not initialised")
	}

	timestamp, err := time.Parse(time.RFC3339Nano, event.Timestamp)
	if err != nil {
		timestamp = time.Now().UTC()
	}

	switch event.Type {
	case events.TypeOrderPlaced:
		payload, ok := event.Data.(events.OrderPlacedPayload)
		if !ok {
			return errors.New("notifications: unexpected orderPlaced payload")
		}
		c.apply(domain.Notification{
			OrderID:   payload.OrderID,
			UserID:    payload.UserID,
			Role:      domain.NotifyAdmin,
			Title:     "New order",
			Status:    payload.Status,
			Version:   payload.Version,
			Timestamp: timestamp,
		})

	case events.TypeStatusChanged:
		payload, ok := event.Data.(events.StatusChangedPayload)
		if !ok {
			return errors.New("notifications: unexpected statusChanged payload")
		}
		switch payload.Status {
		case domain.OrderStatusReady:
			c.apply(domain.Notification{
				OrderID:   payload.OrderID,
				UserID:    payload.UserID,
				Role:      domain.NotifyUser,
				Title:     "Your order is ready",
				Status:    payload.Status,
				Version:   payload.Version,
				Timestamp: timestamp,
			})
		case domain.OrderStatusDelivered:
			c.apply(domain.Notification{
				OrderID:   payload.OrderID,
				UserID:    payload.UserID,
				Role:      domain.NotifyAdmin,
				Title:     "Order picked up",
				Status:    payload.Status,
				Version:   payload.Version,
				Timestamp: timestamp,
			})
		}

	case events.TypePaymentUpdated:
		// Payment reconciliation never surfaces a notification of its own.
	}

	return nil
}

// apply inserts or supersedes the (orderID, role) entry, ignoring stale versions.
func (c *Center) apply(n domain.Notification) {
	key := entryKey{orderID: n.OrderID, role: n.Role}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok && existing.Version > n.Version {
		c.logger.Debug("discarding stale notification event",
			zap.String("order_id", n.OrderID),
			zap.String("role", string(n.Role)),
			zap.Int64("stored_version", existing.Version),
			zap.Int64("event_version", n.Version),
		)
		return
	}
	// A superseding event resets the read flag: the entry describes new state.
	c.entries[key] = n
}

// ListForAdmin returns admin-scoped notifications, newest first.
func (c *Center) ListForAdmin() []domain.Notification {
	return c.list(func(n domain.Notification) bool {
		return n.Role == domain.NotifyAdmin
	})
}

// ListForUser returns the given user's notifications, newest first.
func (c *Center) ListForUser(userID string) []domain.Notification {
	return c.list(func(n domain.Notification) bool {
		return n.Role == domain.NotifyUser && n.UserID == userID
	})
}

// MarkRead flags the (orderID, role) entry as read. Reading is pair-scoped:
// an admin acknowledging an order leaves the customer's entry untouched. For
// the user role the entry must belong to userID; another customer's order
// reports not found so the endpoint leaks nothing about foreign orders.
func (c *Center) MarkRead(orderID string, role domain.NotificationRole, userID string) error {
	key := entryKey{orderID: orderID, role: role}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return ErrNotificationNotFound
	}
	if role == domain.NotifyUser && entry.UserID != userID {
		return ErrNotificationNotFound
	}
	entry.Read = true
	c.entries[key] = entry
	return nil
}

func (c *Center) list(match func(domain.Notification) bool) []domain.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Notification, 0, len(c.entries))
	for _, entry := range c.entries {
		if match(entry) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].OrderID > out[j].OrderID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
