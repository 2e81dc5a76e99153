package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/savora/api/internal/domain"
	pfirestore "github.com/savora/api/internal/platform/firestore"
)

const userCollection = "users"

type userDocument struct {
	Name         string         `firestore:"name"`
	Email        string         `firestore:"email"`
	PasswordHash string         `firestore:"passwordHash"`
	Role         string         `firestore:"role"`
	CartData     map[string]int `firestore:"cartData"`
	CreatedAt    time.Time      `firestore:"createdAt"`
	UpdatedAt    time.Time      `firestore:"updatedAt"`
}

// UserRepository persists user accounts within Firestore. The cart lives on
// the user document as a quantity map so payment reconciliation can clear it
// with a single field write.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil)
	return &UserRepository{base: base, provider: provider}, nil
}

// Insert stores a new user account under the account's ID.
func (r *UserRepository) Insert(ctx context.Context, user domain.UserAccount) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user repository: user id is required")
	}
	_, err := r.base.Set(ctx, user.ID, fromDomainUser(user))
	return err
}

// FindByID loads the user account by ID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserAccount, error) {
	if r == nil || r.base == nil {
		return domain.UserAccount{}, errors.New("user repository not initialised")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return toDomainUser(doc.ID, doc.Data), nil
}

// FindByEmail resolves a user account by its unique email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.UserAccount, error) {
	if r == nil || r.base == nil {
		return domain.UserAccount{}, errors.New("user repository not initialised")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.UserAccount{}, errors.New("user repository: email is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.UserAccount{}, err
	}
	if len(docs) == 0 {
		return domain.UserAccount{}, pfirestore.WrapError("users.findbyemail",
			status.Error(codes.NotFound, "user email not found"))
	}
	return toDomainUser(docs[0].ID, docs[0].Data), nil
}

// AdjustCartItem atomically changes one cart entry by delta, flooring at zero.
// The resulting cart map is returned.
func (r *UserRepository) AdjustCartItem(ctx context.Context, userID, itemID string, delta int, updatedAt time.Time) (map[string]int, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return nil, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, errors.New("user repository: item id is required")
	}

	var result map[string]int
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, userID)
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

		cart := doc.Data.CartData
		if cart == nil {
			cart = map[string]int{}
		}
		quantity := cart[itemID] + delta
		if quantity > 0 {
			cart[itemID] = quantity
		} else {
			delete(cart, itemID)
		}

		if err := tx.Update(docRef, []firestore.Update{
			{Path: "cartData", Value: cart},
			{Path: "updatedAt", Value: updatedAt.UTC()},
		}); err != nil {
			return err
		}

		result = make(map[string]int, len(cart))
		for id, qty := range cart {
			result[id] = qty
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ClearCart empties the user's cart map.
func (r *UserRepository) ClearCart(ctx context.Context, userID string, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	_, err := r.base.Update(ctx, userID, []firestore.Update{
		{Path: "cartData", Value: map[string]int{}},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

func fromDomainUser(user domain.UserAccount) userDocument {
	cart := user.CartData
	if cart == nil {
		cart = map[string]int{}
	}
	return userDocument{
		Name:         strings.TrimSpace(user.Name),
		Email:        strings.ToLower(strings.TrimSpace(user.Email)),
		PasswordHash: user.PasswordHash,
		Role:         strings.ToLower(strings.TrimSpace(user.Role)),
		CartData:     cart,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
}

func toDomainUser(id string, doc userDocument) domain.UserAccount {
	cart := doc.CartData
	if cart == nil {
		cart = map[string]int{}
	}
	return domain.UserAccount{
		ID:           id,
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Role:         doc.Role,
		CartData:     cart,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}
