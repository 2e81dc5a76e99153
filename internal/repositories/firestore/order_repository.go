package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/savora/api/internal/domain"
	pfirestore "github.com/savora/api/internal/platform/firestore"
	"github.com/savora/api/internal/repositories"
)

const orderCollection = "orders"

type orderItemDocument struct {
	MenuItemID string `firestore:"menuItemId"`
	Name       string `firestore:"name"`
	UnitPrice  int64  `firestore:"unitPrice"`
	Quantity   int    `firestore:"quantity"`
}

type addressDocument struct {
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
	Email     string `firestore:"email"`
	Street    string `firestore:"street"`
	City      string `firestore:"city"`
	State     string `firestore:"state"`
	Zipcode   string `firestore:"zipcode"`
	Country   string `firestore:"country"`
	Phone     string `firestore:"phone"`
}

type orderDocument struct {
	UserID    string              `firestore:"userId"`
	Items     []orderItemDocument `firestore:"items"`
	Address   addressDocument     `firestore:"address"`
	Amount    int64               `firestore:"amount"`
	Status    string              `firestore:"status"`
	Payment   bool                `firestore:"payment"`
	Version   int64               `firestore:"version"`
	CreatedAt time.Time           `firestore:"createdAt"`
	UpdatedAt time.Time           `firestore:"updatedAt"`
}

// OrderRepository persists orders within Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert stores a new order document under the order's ID.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Set(ctx, order.ID, fromDomainOrder(order))
	return err
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data)
}

// List returns orders newest first, applying the provided filter.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			query = query.Where("userId", "==", userID)
		}
		if filter.Status != nil {
			query = query.Where("status", "==", string(*filter.Status))
		}
		if filter.PlacedFrom != nil {
			query = query.Where("createdAt", ">=", filter.PlacedFrom.UTC())
		}
		if filter.PlacedTo != nil {
			query = query.Where("createdAt", "<=", filter.PlacedTo.UTC())
		}
		query = query.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		return query
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := toDomainOrder(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// UpdateStatus persists the new stage and bumps the version in one transaction.
// The stored stage must still equal from when the write lands; a mismatch means
// another request advanced the order first and the call fails with a conflict.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(ctx, snap)
		if err != nil {
			return err
		}

		current, ok := domain.NormalizeStatus(doc.Data.Status)
		if !ok {
			return pfirestore.WrapError("orders.updateStatus",
				status.Error(codes.DataLoss, fmt.Sprintf("order %s has unknown status %q", orderID, doc.Data.Status)))
		}
		if current != from {
			return pfirestore.WrapError("orders.updateStatus",
				status.Error(codes.Aborted, fmt.Sprintf("order %s moved from %q to %q concurrently", orderID, from, current)))
		}

		version := doc.Data.Version + 1
		if err := tx.Update(docRef, []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "version", Value: version},
			{Path: "updatedAt", Value: updatedAt.UTC()},
		}); err != nil {
			return err
		}

		doc.Data.Status = string(to)
		doc.Data.Version = version
		doc.Data.UpdatedAt = updatedAt.UTC()
		updated, err = toDomainOrder(doc.ID, doc.Data)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// MarkPaid flips the payment flag inside a single transaction, reporting
// whether the flag was already set before the write.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (repositories.PaymentMark, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return repositories.PaymentMark{}, errors.New("order repository not initialised")
	}

	var mark repositories.PaymentMark
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(ctx, snap)
		if err != nil {
			return err
		}

		mark.WasPaid = doc.Data.Payment
		version := doc.Data.Version
		if !mark.WasPaid {
			version++
			if err := tx.Update(docRef, []firestore.Update{
				{Path: "payment", Value: true},
				{Path: "version", Value: version},
				{Path: "updatedAt", Value: paidAt.UTC()},
			}); err != nil {
				return err
			}
			doc.Data.UpdatedAt = paidAt.UTC()
		}

		doc.Data.Payment = true
		doc.Data.Version = version
		mark.Order, err = toDomainOrder(doc.ID, doc.Data)
		return err
	})
	if err != nil {
		return repositories.PaymentMark{}, err
	}
	return mark, nil
}

// Delete removes the order document.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	return r.base.Delete(ctx, orderID, firestore.Exists)
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
		})
	}
	return orderDocument{
		UserID: order.UserID,
		Items:  items,
		Address: addressDocument{
			FirstName: order.Address.FirstName,
			LastName:  order.Address.LastName,
			Email:     order.Address.Email,
			Street:    order.Address.Street,
			City:      order.Address.City,
			State:     order.Address.State,
			Zipcode:   order.Address.Zipcode,
			Country:   order.Address.Country,
			Phone:     order.Address.Phone,
		},
		Amount:    order.Amount,
		Status:    string(order.Status),
		Payment:   order.Paid,
		Version:   order.Version,
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}
}

func toDomainOrder(id string, doc orderDocument) (domain.Order, error) {
	parsed, ok := domain.NormalizeStatus(doc.Status)
	if !ok {
		return domain.Order{}, pfirestore.WrapError("orders.decode",
			status.Error(codes.DataLoss, fmt.Sprintf("order %s has unknown status %q", id, doc.Status)))
	}

	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
		})
	}

	return domain.Order{
		ID:     id,
		UserID: doc.UserID,
		Items:  items,
		Address: domain.Address{
			FirstName: doc.Address.FirstName,
			LastName:  doc.Address.LastName,
			Email:     doc.Address.Email,
			Street:    doc.Address.Street,
			City:      doc.Address.City,
			State:     doc.Address.State,
			Zipcode:   doc.Address.Zipcode,
			Country:   doc.Address.Country,
			Phone:     doc.Address.Phone,
		},
		Amount:    doc.Amount,
		Status:    parsed,
		Paid:      doc.Payment,
		Version:   doc.Version,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}
