package repositories

import (
	"context"
	"time"

	domain "github.com/savora/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Users() UserRepository
	Menu() MenuRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderListFilter narrows order listings. A nil Status means all stages.
type OrderListFilter struct {
	UserID     string
	Status     *domain.OrderStatus
	PlacedFrom *time.Time
	PlacedTo   *time.Time
	Limit      int
}

// PaymentMark reports the outcome of an atomic payment flag flip.
type PaymentMark struct {
	Order   domain.Order
	WasPaid bool
}

// OrderRepository persists order documents.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// List returns orders newest first, applying the provided filter.
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	// UpdateStatus persists the new stage and bumps the order version in one
	// transaction, returning the updated order. The write only lands while
	// the stored stage still equals from; otherwise the call fails with a
	// conflict.
	UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, updatedAt time.Time) (domain.Order, error)
	// MarkPaid reads the prior payment flag and sets it true as a single
	// transactional step. WasPaid reports the flag value before the write.
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (PaymentMark, error)
	Delete(ctx context.Context, orderID string) error
}

// UserRepository persists user accounts including the embedded cart map.
type UserRepository interface {
	Insert(ctx context.Context, user domain.UserAccount) error
	FindByID(ctx context.Context, userID string) (domain.UserAccount, error)
	FindByEmail(ctx context.Context, email string) (domain.UserAccount, error)
	// AdjustCartItem atomically changes the quantity of one cart entry by
	// delta, flooring at zero and dropping emptied entries. It returns the
	// resulting cart map.
	AdjustCartItem(ctx context.Context, userID, itemID string, delta int, updatedAt time.Time) (map[string]int, error)
	ClearCart(ctx context.Context, userID string, updatedAt time.Time) error
}

// MenuListFilter narrows menu listings.
type MenuListFilter struct {
	Category      string
	AvailableOnly bool
}

// MenuRepository persists menu items.
type MenuRepository interface {
	Insert(ctx context.Context, item domain.MenuItem) error
	Update(ctx context.Context, item domain.MenuItem) error
	Delete(ctx context.Context, itemID string) error
	FindByID(ctx context.Context, itemID string) (domain.MenuItem, error)
	List(ctx context.Context, filter MenuListFilter) ([]domain.MenuItem, error)
	SetImagePath(ctx context.Context, itemID, path string, updatedAt time.Time) error
}

// HealthRepository verifies backend connectivity for readiness probes.
type HealthRepository interface {
	Check(ctx context.Context) error
}
