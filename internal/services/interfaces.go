package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/savora/api/internal/domain"
	"github.com/savora/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order       = domain.Order
	OrderItem   = domain.OrderItem
	OrderStatus = domain.OrderStatus
	Address     = domain.Address
	MenuItem    = domain.MenuItem
	UserAccount = domain.UserAccount
)

// OrderItemInput references a menu item and quantity when placing an order.
// Name and price are never taken from the client; they are snapshotted from
// the menu at placement time.
type OrderItemInput struct {
	MenuItemID string
	Quantity   int
}

// PlaceOrderCommand captures the input for placing a new order.
type PlaceOrderCommand struct {
	UserID  string
	Items   []OrderItemInput
	Address Address
}

// PlaceOrderResult carries the persisted order and the hosted checkout
// redirect the customer completes payment on.
type PlaceOrderResult struct {
	Order       Order
	CheckoutURL string
}

// AdvanceStatusCommand moves an order to the named lifecycle stage.
type AdvanceStatusCommand struct {
	OrderID string
	Target  string
	ActorID string
}

// ConfirmDeliveryCommand records the owning customer confirming receipt.
type ConfirmDeliveryCommand struct {
	OrderID string
	UserID  string
}

// OrderListQuery narrows order listings. Status is the raw client value and
// is normalised before use.
type OrderListQuery struct {
	Status     string
	PlacedFrom *time.Time
	PlacedTo   *time.Time
	Limit      int
}

// OrderService orchestrates the order lifecycle.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
	AdvanceStatus(ctx context.Context, cmd AdvanceStatusCommand) (Order, error)
	ConfirmDelivery(ctx context.Context, cmd ConfirmDeliveryCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListForUser(ctx context.Context, userID string, query OrderListQuery) ([]Order, error)
	ListAll(ctx context.Context, query OrderListQuery) ([]Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

// PaymentVerification reports the outcome of a redirect-driven check.
type PaymentVerification struct {
	OrderID string
	Paid    bool
}

// PaymentService reconciles payment outcomes from the redirect and webhook paths.
type PaymentService interface {
	VerifyRedirect(ctx context.Context, orderID string, success bool) (PaymentVerification, error)
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
	ConfirmPayment(ctx context.Context, orderID string) error
}

// CartService manages the per-user quantity map stored on the user document.
type CartService interface {
	AddItem(ctx context.Context, userID, itemID string) (map[string]int, error)
	RemoveItem(ctx context.Context, userID, itemID string) (map[string]int, error)
	Get(ctx context.Context, userID string) (map[string]int, error)
	Clear(ctx context.Context, userID string) error
}

// CreateMenuItemCommand captures the admin input for a new dish.
type CreateMenuItemCommand struct {
	Name        string
	Description string
	Category    string
	Price       int64
	Available   *bool
}

// UpdateMenuItemCommand patches an existing dish. Nil fields stay untouched.
type UpdateMenuItemCommand struct {
	ItemID      string
	Name        *string
	Description *string
	Category    *string
	Price       *int64
	Available   *bool
}

// MenuListQuery narrows public menu listings.
type MenuListQuery struct {
	Category      string
	AvailableOnly bool
}

// ImageUpload describes a one-shot signed upload slot for a menu image.
type ImageUpload struct {
	URL        string
	Method     string
	Headers    map[string]string
	ObjectPath string
	ExpiresAt  time.Time
}

// MenuService manages the storefront menu.
type MenuService interface {
	Create(ctx context.Context, cmd CreateMenuItemCommand) (MenuItem, error)
	Update(ctx context.Context, cmd UpdateMenuItemCommand) (MenuItem, error)
	Delete(ctx context.Context, itemID string) error
	Get(ctx context.Context, itemID string) (MenuItem, error)
	List(ctx context.Context, query MenuListQuery) ([]MenuItem, error)
	IssueImageUpload(ctx context.Context, itemID, contentType string) (ImageUpload, error)
}

// RegisterCommand captures a sign-up request.
type RegisterCommand struct {
	Name     string
	Email    string
	Password string
}

// LoginCommand captures a sign-in request.
type LoginCommand struct {
	Email    string
	Password string
}

// AuthResult carries the issued session token alongside the account.
type AuthResult struct {
	Token string
	User  UserAccount
}

// UserService handles registration, login and profile reads.
type UserService interface {
	Register(ctx context.Context, cmd RegisterCommand) (AuthResult, error)
	Login(ctx context.Context, cmd LoginCommand) (AuthResult, error)
	GetProfile(ctx context.Context, userID string) (UserAccount, error)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
