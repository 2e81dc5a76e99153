package domain

import (
	"time"
)

// OrderStatus enumerates the lifecycle stages an order moves through.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been created and awaits payment.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusPreparing indicates the kitchen is working on the order.
	OrderStatusPreparing OrderStatus = "Preparing"
	// OrderStatusReady indicates the order is ready for pickup or delivery.
	OrderStatusReady OrderStatus = "Ready"
	// OrderStatusDelivered indicates the customer confirmed receipt of the order.
	OrderStatusDelivered OrderStatus = "Delivered"
)

// StatusSequence lists the lifecycle stages in their only legal progression order.
var StatusSequence = []OrderStatus{
	OrderStatusPending,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusDelivered,
}

// legacyStatusAliases maps status strings written by earlier revisions of the
// application onto the current closed enumeration.
var legacyStatusAliases = map[string]OrderStatus{
	"Food Processing": OrderStatusPreparing,
}

// NormalizeStatus maps a raw stored status string onto the closed enumeration.
// Legacy aliases are folded into their modern stage and an empty value defaults
// to Pending. The boolean reports whether the input resolved to a known stage.
func NormalizeStatus(raw string) (OrderStatus, bool) {
	if raw == "" {
		return OrderStatusPending, true
	}
	if mapped, ok := legacyStatusAliases[raw]; ok {
		return mapped, true
	}
	status := OrderStatus(raw)
	if status.Index() >= 0 {
		return status, true
	}
	return "", false
}

// Index returns the position of the status within StatusSequence, or -1 when
// the value is not a member of the enumeration.
func (s OrderStatus) Index() int {
	for i, stage := range StatusSequence {
		if stage == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s in the sequence, or false when s is the
// terminal stage or unknown.
func (s OrderStatus) Next() (OrderStatus, bool) {
	idx := s.Index()
	if idx < 0 || idx+1 >= len(StatusSequence) {
		return "", false
	}
	return StatusSequence[idx+1], true
}

// OrderItem snapshots a menu item at order-placement time. The name and unit
// price are copied so historical orders keep showing the price actually paid.
type OrderItem struct {
	MenuItemID string
	Name       string
	UnitPrice  int64
	Quantity   int
}

// Address captures the free-form shipping and contact record supplied at
// checkout. It is immutable once the order is created.
type Address struct {
	FirstName string
	LastName  string
	Email     string
	Street    string
	City      string
	State     string
	Zipcode   string
	Country   string
	Phone     string
}

// Order is the central entity of the system.
type Order struct {
	ID        string
	UserID    string
	Items     []OrderItem
	Address   Address
	Amount    int64
	Status    OrderStatus
	Paid      bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MenuItem represents a dish offered on the storefront menu.
type MenuItem struct {
	ID          string
	Name        string
	Description string
	Category    string
	Price       int64
	ImagePath   string
	Available   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Role constants used when checking authorisation boundaries.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// UserAccount is the stored user document. CartData maps menu item IDs to
// quantities, mirroring how the cart is cleared wholesale after payment.
type UserAccount struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	CartData     map[string]int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NotificationRole identifies which audience a notification targets.
type NotificationRole string

const (
	// NotifyAdmin targets staff dashboards.
	NotifyAdmin NotificationRole = "admin"
	// NotifyUser targets the customer owning the order.
	NotifyUser NotificationRole = "user"
)

// Notification is a transient, client-observable projection of order events,
// keyed by (OrderID, Role). Later events for the same key supersede the record
// in place rather than duplicating it.
type Notification struct {
	OrderID   string
	UserID    string
	Role      NotificationRole
	Title     string
	Status    OrderStatus
	Version   int64
	Read      bool
	Timestamp time.Time
}

// RangeQuery represents inclusive range filters for timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusError indicates a critical dependency is unavailable.
	HealthStatusError = "error"
)
