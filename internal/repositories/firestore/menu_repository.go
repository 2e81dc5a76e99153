package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/savora/api/internal/domain"
	pfirestore "github.com/savora/api/internal/platform/firestore"
	"github.com/savora/api/internal/repositories"
)

const menuCollection = "menuItems"

type menuItemDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description"`
	Category    string    `firestore:"category"`
	Price       int64     `firestore:"price"`
	ImagePath   string    `firestore:"imagePath"`
	Available   bool      `firestore:"available"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// MenuRepository persists menu items within Firestore.
type MenuRepository struct {
	base *pfirestore.BaseRepository[menuItemDocument]
}

// NewMenuRepository constructs a Firestore-backed menu repository.
func NewMenuRepository(provider *pfirestore.Provider) (*MenuRepository, error) {
	if provider == nil {
		return nil, errors.New("menu repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[menuItemDocument](provider, menuCollection, nil)
	return &MenuRepository{base: base}, nil
}

// Insert stores a new menu item under the item's ID.
func (r *MenuRepository) Insert(ctx context.Context, item domain.MenuItem) error {
	if r == nil || r.base == nil {
		return errors.New("menu repository not initialised")
	}
	if strings.TrimSpace(item.ID) == "" {
		return errors.New("menu repository: item id is required")
	}
	_, err := r.base.Set(ctx, item.ID, fromDomainMenuItem(item))
	return err
}

// Update overwrites an existing menu item document.
func (r *MenuRepository) Update(ctx context.Context, item domain.MenuItem) error {
	if r == nil || r.base == nil {
		return errors.New("menu repository not initialised")
	}
	if strings.TrimSpace(item.ID) == "" {
		return errors.New("menu repository: item id is required")
	}
	_, err := r.base.Update(ctx, item.ID, []firestore.Update{
		{Path: "name", Value: item.Name},
		{Path: "description", Value: item.Description},
		{Path: "category", Value: item.Category},
		{Path: "price", Value: item.Price},
		{Path: "available", Value: item.Available},
		{Path: "updatedAt", Value: item.UpdatedAt.UTC()},
	})
	return err
}

// Delete removes the menu item document.
func (r *MenuRepository) Delete(ctx context.Context, itemID string) error {
	if r == nil || r.base == nil {
		return errors.New("menu repository not initialised")
	}
	return r.base.Delete(ctx, itemID, firestore.Exists)
}

// FindByID loads a single menu item.
func (r *MenuRepository) FindByID(ctx context.Context, itemID string) (domain.MenuItem, error) {
	if r == nil || r.base == nil {
		return domain.MenuItem{}, errors.New("menu repository not initialised")
	}
	doc, err := r.base.Get(ctx, itemID)
	if err != nil {
		return domain.MenuItem{}, err
	}
	return toDomainMenuItem(doc.ID, doc.Data), nil
}

// List returns menu items ordered by name, applying the provided filter.
func (r *MenuRepository) List(ctx context.Context, filter repositories.MenuListFilter) ([]domain.MenuItem, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("menu repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			query = query.Where("category", "==", category)
		}
		if filter.AvailableOnly {
			query = query.Where("available", "==", true)
		}
		return query.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	items := make([]domain.MenuItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainMenuItem(doc.ID, doc.Data))
	}
	return items, nil
}

// SetImagePath records the storage object path of the item's image.
func (r *MenuRepository) SetImagePath(ctx context.Context, itemID, path string, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("menu repository not initialised")
	}
	_, err := r.base.Update(ctx, itemID, []firestore.Update{
		{Path: "imagePath", Value: strings.TrimSpace(path)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

func fromDomainMenuItem(item domain.MenuItem) menuItemDocument {
	return menuItemDocument{
		Name:        strings.TrimSpace(item.Name),
		Description: item.Description,
		Category:    strings.TrimSpace(item.Category),
		Price:       item.Price,
		ImagePath:   strings.TrimSpace(item.ImagePath),
		Available:   item.Available,
		CreatedAt:   item.CreatedAt.UTC(),
		UpdatedAt:   item.UpdatedAt.UTC(),
	}
}

func toDomainMenuItem(id string, doc menuItemDocument) domain.MenuItem {
	return domain.MenuItem{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Category:    doc.Category,
		Price:       doc.Price,
		ImagePath:   doc.ImagePath,
		Available:   doc.Available,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
