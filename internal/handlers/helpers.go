package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/savora/api/internal/domain"
	"github.com/savora/api/internal/platform/auth"
	"github.com/savora/api/internal/services"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// requireIdentity resolves the authenticated identity from the request context.
func requireIdentity(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return nil, false
	}
	return identity, true
}

type addressPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zipcode   string `json:"zipcode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

func (p addressPayload) toDomain() domain.Address {
	return domain.Address{
		FirstName: strings.TrimSpace(p.FirstName),
		LastName:  strings.TrimSpace(p.LastName),
		Email:     strings.TrimSpace(p.Email),
		Street:    strings.TrimSpace(p.Street),
		City:      strings.TrimSpace(p.City),
		State:     strings.TrimSpace(p.State),
		Zipcode:   strings.TrimSpace(p.Zipcode),
		Country:   strings.TrimSpace(p.Country),
		Phone:     strings.TrimSpace(p.Phone),
	}
}

func buildAddressPayload(a domain.Address) addressPayload {
	return addressPayload(a)
}

type orderItemPayload struct {
	ItemID    string `json:"itemId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

type orderPayload struct {
	ID        string             `json:"id"`
	UserID    string             `json:"userId"`
	Items     []orderItemPayload `json:"items"`
	Address   addressPayload     `json:"address"`
	Amount    int64              `json:"amount"`
	Status    string             `json:"status"`
	Payment   bool               `json:"payment"`
	Version   int64              `json:"version"`
	CreatedAt string             `json:"createdAt"`
	UpdatedAt string             `json:"updatedAt"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ItemID:    item.MenuItemID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return orderPayload{
		ID:        order.ID,
		UserID:    order.UserID,
		Items:     items,
		Address:   buildAddressPayload(order.Address),
		Amount:    order.Amount,
		Status:    string(order.Status),
		Payment:   order.Paid,
		Version:   order.Version,
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
}

func buildOrderListPayload(orders []services.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		out = append(out, buildOrderPayload(order))
	}
	return out
}

type menuItemPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	ImagePath   string `json:"imagePath,omitempty"`
	Available   bool   `json:"available"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func buildMenuItemPayload(item services.MenuItem) menuItemPayload {
	return menuItemPayload{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Category:    item.Category,
		Price:       item.Price,
		ImagePath:   item.ImagePath,
		Available:   item.Available,
		CreatedAt:   formatTime(item.CreatedAt),
		UpdatedAt:   formatTime(item.UpdatedAt),
	}
}

type userPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func buildUserPayload(user services.UserAccount) userPayload {
	return userPayload{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	}
}

type notificationPayload struct {
	OrderID   string `json:"orderId"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Version   int64  `json:"version"`
	Read      bool   `json:"read"`
	Timestamp string `json:"timestamp"`
}

func buildNotificationPayload(n domain.Notification) notificationPayload {
	return notificationPayload{
		OrderID:   n.OrderID,
		Title:     n.Title,
		Status:    string(n.Status),
		Version:   n.Version,
		Read:      n.Read,
		Timestamp: formatTime(n.Timestamp),
	}
}
